package chat

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Message is one entry in a chat feed. Content, user and avatar may be
// replaced in place while the message keeps its slot in the feed, which is
// what incremental streaming relies on.
type Message struct {
	mu sync.Mutex

	ID        string
	Object    any
	User      string
	Avatar    string
	Timestamp time.Time

	// presentation hints, not semantics
	ShowTimestamp bool
	WidthHint     int
}

// NewMessage creates a message with a fresh ID and timestamp. The avatar is
// resolved from the default table when empty.
func NewMessage(object any, user, avatar string) *Message {
	if avatar == "" {
		avatar = LookupAvatar(user, nil, "")
	}
	return &Message{
		ID:            uuid.NewString(),
		Object:        object,
		User:          user,
		Avatar:        avatar,
		Timestamp:     time.Now(),
		ShowTimestamp: true,
	}
}

// Stream appends a token to the message's content. String tokens append to
// string content (or initialize empty content); record tokens append their
// "object"/"value" text and may also carry user/avatar replacements.
func (m *Message) Stream(token any) error {
	if m == nil {
		return errors.New("stream into nil message")
	}
	switch t := token.(type) {
	case string:
		return m.appendText(t)
	case map[string]any:
		rec, err := normalizeRecord(t)
		if err != nil {
			return err
		}
		if user, ok := rec["user"].(string); ok && user != "" {
			m.SetUser(user)
		}
		if avatar, ok := rec["avatar"].(string); ok && avatar != "" {
			m.SetAvatar(avatar)
		}
		if obj, ok := rec["object"]; ok && obj != nil {
			return m.appendText(fmt.Sprint(obj))
		}
		return nil
	default:
		return errors.Wrapf(ErrValidation, "cannot stream %T token", token)
	}
}

// Update replaces the message's content and optionally user/avatar.
// A record value merges field by field with explicit arguments winning; a
// *Message value requires user and avatar to be unset (ErrConflict otherwise)
// and copies its fields wholesale; any other value becomes the new content.
func (m *Message) Update(value any, user, avatar string) error {
	if m == nil {
		return errors.New("update of nil message")
	}
	switch v := value.(type) {
	case map[string]any:
		rec, err := normalizeRecord(v)
		if err != nil {
			return err
		}
		m.mu.Lock()
		if obj, ok := rec["object"]; ok {
			m.Object = obj
		}
		if u, ok := rec["user"].(string); ok && u != "" {
			m.User = u
		}
		if a, ok := rec["avatar"].(string); ok && a != "" {
			m.Avatar = a
		}
		if user != "" {
			m.User = user
		}
		if avatar != "" {
			m.Avatar = avatar
		}
		m.mu.Unlock()
		return nil
	case *Message:
		if user != "" || avatar != "" {
			return errors.Wrap(ErrConflict, "set user and avatar directly on the message")
		}
		if v == m {
			return nil
		}
		v.mu.Lock()
		obj, u, a := v.Object, v.User, v.Avatar
		v.mu.Unlock()
		m.mu.Lock()
		m.Object = obj
		m.User = u
		m.Avatar = a
		m.mu.Unlock()
		return nil
	default:
		m.mu.Lock()
		m.Object = value
		if user != "" {
			m.User = user
		}
		if avatar != "" {
			m.Avatar = avatar
		}
		m.mu.Unlock()
		return nil
	}
}

func (m *Message) appendText(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch obj := m.Object.(type) {
	case nil:
		m.Object = token
	case string:
		m.Object = obj + token
	default:
		return errors.Wrapf(ErrValidation, "cannot stream text into %T content", m.Object)
	}
	return nil
}

// SetUser replaces the author in place.
func (m *Message) SetUser(user string) {
	m.mu.Lock()
	m.User = user
	m.mu.Unlock()
}

// SetAvatar replaces the avatar in place.
func (m *Message) SetAvatar(avatar string) {
	m.mu.Lock()
	m.Avatar = avatar
	m.mu.Unlock()
}

// Fields returns a consistent view of the mutable fields.
func (m *Message) Fields() (object any, user, avatar string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Object, m.User, m.Avatar
}

// Text renders the content as a string for display and token counting.
func (m *Message) Text() string {
	obj, _, _ := m.Fields()
	if obj == nil {
		return ""
	}
	if s, ok := obj.(string); ok {
		return s
	}
	return fmt.Sprint(obj)
}

// MessageRecord is the transport/persistence projection of a Message.
type MessageRecord struct {
	ID          string `json:"id"`
	User        string `json:"user"`
	Avatar      string `json:"avatar,omitempty"`
	Content     string `json:"content"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// Record snapshots the message into a MessageRecord.
func (m *Message) Record() MessageRecord {
	if m == nil {
		return MessageRecord{}
	}
	_, user, avatar := m.Fields()
	return MessageRecord{
		ID:          m.ID,
		User:        user,
		Avatar:      avatar,
		Content:     m.Text(),
		TimestampMs: m.Timestamp.UnixMilli(),
	}
}

// normalizeRecord validates a structured payload and rewrites the legacy
// "value" key to "object". Exactly one of the two must be present.
func normalizeRecord(rec map[string]any) (map[string]any, error) {
	_, hasValue := rec["value"]
	_, hasObject := rec["object"]
	if hasValue && hasObject {
		return nil, errors.Wrapf(ErrValidation, "cannot pass both 'value' and 'object'; got %v", rec)
	}
	if !hasValue && !hasObject {
		return nil, errors.Wrapf(ErrValidation, "record must contain an 'object' key, e.g. {\"object\": \"Hello World\"}; got %v", rec)
	}
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	if hasValue {
		out["object"] = out["value"]
		delete(out, "value")
	}
	return out, nil
}
