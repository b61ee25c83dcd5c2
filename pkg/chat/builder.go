package chat

import (
	"github.com/pkg/errors"
)

// widthMargin is subtracted from a fixed feed width to size message bodies.
const widthMargin = 80

// BuilderConfig carries the feed-level defaults applied to every built message.
type BuilderConfig struct {
	// DefaultUser is used when neither the arguments nor the record name one.
	DefaultUser string
	// DefaultAvatar is the fallback when the avatar table has no entry.
	DefaultAvatar string
	// AvatarOverrides extends the default avatar table, matched on
	// normalized keys.
	AvatarOverrides map[string]string
	// FeedWidth, when positive, produces a WidthHint on built messages.
	FeedWidth int
	// HideTimestamp suppresses the timestamp presentation hint.
	HideTimestamp bool
}

// Builder normalizes raw values, structured records and pre-built messages
// into canonical *Message entries.
type Builder struct {
	cfg BuilderConfig
}

func NewBuilder(cfg BuilderConfig) *Builder {
	if cfg.DefaultUser == "" {
		cfg.DefaultUser = "User"
	}
	return &Builder{cfg: cfg}
}

// Build turns value into a message. Explicit user/avatar arguments override
// fields embedded in a record, which override the builder defaults. Passing a
// pre-built *Message returns it unchanged; combining one with explicit
// user/avatar is an ErrConflict.
func (b *Builder) Build(value any, user, avatar string) (*Message, error) {
	if b == nil {
		return nil, errors.New("builder is nil")
	}
	if msg, ok := value.(*Message); ok {
		if user != "" || avatar != "" {
			return nil, errors.Wrap(ErrConflict, "set user and avatar directly on the message")
		}
		return msg, nil
	}

	object := value
	effectiveUser := b.cfg.DefaultUser
	effectiveAvatar := ""
	if rec, ok := value.(map[string]any); ok {
		normalized, err := normalizeRecord(rec)
		if err != nil {
			return nil, err
		}
		object = normalized["object"]
		if u, ok := normalized["user"].(string); ok && u != "" {
			effectiveUser = u
		}
		if a, ok := normalized["avatar"].(string); ok && a != "" {
			effectiveAvatar = a
		}
	}
	if user != "" {
		effectiveUser = user
	}
	if avatar != "" {
		effectiveAvatar = avatar
	}
	if effectiveAvatar == "" {
		effectiveAvatar = LookupAvatar(effectiveUser, b.cfg.AvatarOverrides, b.cfg.DefaultAvatar)
	}

	msg := NewMessage(object, effectiveUser, effectiveAvatar)
	msg.ShowTimestamp = !b.cfg.HideTimestamp
	if b.cfg.FeedWidth > 0 {
		msg.WidthHint = b.cfg.FeedWidth - widthMargin
	}
	return msg, nil
}
