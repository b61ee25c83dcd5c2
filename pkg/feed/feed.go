package feed

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatfeed/pkg/chat"
)

// Callback computes the feed's response to the latest message. It receives
// the message contents and user plus the feed itself, so it may inspect or
// mutate the log, and returns the Response shape to drain.
type Callback func(ctx context.Context, contents any, user string, f *Feed) (Response, error)

// ErrorPolicy selects how callback failures are surfaced.
type ErrorPolicy string

const (
	// PolicyRaise propagates the error to the caller of RespondAndWait, or
	// to the OnError hook for fire-and-forget triggers.
	PolicyRaise ErrorPolicy = "raise"
	// PolicySummary posts the error's one-line form to the feed.
	PolicySummary ErrorPolicy = "summary"
	// PolicyVerbose posts the full error with stack trace to the feed.
	PolicyVerbose ErrorPolicy = "verbose"
	// PolicyIgnore drops the error silently.
	PolicyIgnore ErrorPolicy = "ignore"
)

const (
	// ExceptionUser authors the feed entries produced by failing callbacks.
	ExceptionUser = "Exception"
	// PlaceholderUser is the distinguished author of the transient
	// placeholder entry.
	PlaceholderUser = " "

	DefaultCallbackUser         = "Assistant"
	DefaultPlaceholderThreshold = time.Second
	DefaultPollInterval         = 280 * time.Millisecond
)

// Feed is an ordered chat log plus the orchestration that answers new
// messages through a configured Callback.
type Feed struct {
	id      string
	log     *Log
	builder *chat.Builder

	callback     Callback
	callbackUser string
	errorPolicy  ErrorPolicy
	onError      func(error)

	placeholderText      string
	placeholderThreshold time.Duration
	pollInterval         time.Duration

	mu             sync.Mutex
	busy           bool
	disabled       bool
	placeholder    *chat.Message
	placeholderIdx int
}

// Option configures a Feed at construction time.
type Option func(*Feed)

func WithCallback(cb Callback) Option { return func(f *Feed) { f.callback = cb } }

func WithCallbackUser(user string) Option { return func(f *Feed) { f.callbackUser = user } }

func WithErrorPolicy(p ErrorPolicy) Option { return func(f *Feed) { f.errorPolicy = p } }

// WithOnError installs a hook receiving errors from fire-and-forget triggers
// under PolicyRaise.
func WithOnError(hook func(error)) Option { return func(f *Feed) { f.onError = hook } }

func WithPlaceholderText(text string) Option { return func(f *Feed) { f.placeholderText = text } }

// WithPlaceholderThreshold sets the buffering duration before the placeholder
// appears. Zero disables the placeholder entirely.
func WithPlaceholderThreshold(d time.Duration) Option {
	return func(f *Feed) { f.placeholderThreshold = d }
}

// WithPollInterval tunes the placeholder race's polling cadence.
func WithPollInterval(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.pollInterval = d
		}
	}
}

// WithNotifier subscribes fn to log change events.
func WithNotifier(fn Notifier) Option { return func(f *Feed) { f.log.notifier = fn } }

// WithBuilder replaces the default message builder.
func WithBuilder(b *chat.Builder) Option { return func(f *Feed) { f.builder = b } }

func New(id string, opts ...Option) *Feed {
	f := &Feed{
		id:                   id,
		callbackUser:         DefaultCallbackUser,
		errorPolicy:          PolicySummary,
		placeholderThreshold: DefaultPlaceholderThreshold,
		pollInterval:         DefaultPollInterval,
		placeholderIdx:       -1,
	}
	f.log = NewLog(nil)
	f.builder = chat.NewBuilder(chat.BuilderConfig{})
	for _, opt := range opts {
		opt(f)
	}
	f.rebuildPlaceholder()
	return f
}

func (f *Feed) ID() string { return f.id }

func (f *Feed) Log() *Log { return f.log }

// SetDisabled toggles the external disabled flag. Orchestration saves and
// restores it around a cycle instead of clearing it.
func (f *Feed) SetDisabled(disabled bool) {
	f.mu.Lock()
	f.disabled = disabled
	f.mu.Unlock()
}

func (f *Feed) Disabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disabled
}

// Busy reports whether a response cycle is in flight.
func (f *Feed) Busy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy
}

// SetPlaceholderText recreates the placeholder message with the new text.
func (f *Feed) SetPlaceholderText(text string) {
	f.mu.Lock()
	f.placeholderText = text
	f.mu.Unlock()
	f.rebuildPlaceholder()
}

func (f *Feed) rebuildPlaceholder() {
	msg := chat.NewMessage(f.placeholderText, PlaceholderUser, "⏳")
	msg.ShowTimestamp = false
	f.mu.Lock()
	f.placeholder = msg
	f.mu.Unlock()
}

// SendInput carries one send request. User and Avatar override the payload's
// embedded fields; NoRespond suppresses the orchestration trigger.
type SendInput struct {
	Value     any
	User      string
	Avatar    string
	NoRespond bool
}

// Send builds (or accepts) a message, appends it, and unless NoRespond is set
// fires the response orchestration for it.
func (f *Feed) Send(ctx context.Context, in SendInput) (*chat.Message, error) {
	msg, err := f.builder.Build(in.Value, in.User, in.Avatar)
	if err != nil {
		return nil, err
	}
	f.log.Append(msg)
	if !in.NoRespond {
		f.Respond(ctx)
	}
	return msg, nil
}

// StreamInput carries one push-based token delivery. When Target is set the
// token merges into it; otherwise a new message is created through the
// placeholder-replace path.
type StreamInput struct {
	Value  any
	User   string
	Avatar string
	Target *chat.Message
}

// StreamToken delivers a token outside the Response draining protocol, for
// push-based producers. Pass the returned message back as Target to keep
// appending to it.
func (f *Feed) StreamToken(_ context.Context, in StreamInput) (*chat.Message, error) {
	if _, ok := in.Value.(*chat.Message); ok && (in.User != "" || in.Avatar != "") {
		return nil, errors.Wrap(chat.ErrConflict, "set user and avatar directly on the message")
	}

	if in.Target != nil {
		switch in.Value.(type) {
		case string, map[string]any:
			if err := in.Target.Stream(in.Value); err != nil {
				return nil, err
			}
			if in.User != "" {
				in.Target.SetUser(in.User)
			}
			if in.Avatar != "" {
				in.Target.SetAvatar(in.Avatar)
			}
		default:
			if err := in.Target.Update(in.Value, in.User, in.Avatar); err != nil {
				return nil, err
			}
		}
		f.log.NotifyUpdated(in.Target)
		return in.Target, nil
	}

	msg, err := f.builder.Build(in.Value, in.User, in.Avatar)
	if err != nil {
		return nil, err
	}
	f.replacePlaceholder(msg)
	return msg, nil
}

// Respond fires the orchestration trigger for the current log tail without
// waiting for the cycle to finish.
func (f *Feed) Respond(ctx context.Context) {
	go func() {
		if err := f.respondCycle(ctx); err != nil {
			if f.onError != nil {
				f.onError(err)
				return
			}
			log.Warn().Err(err).Str("component", "feed").Str("feed_id", f.id).Msg("response cycle failed")
		}
	}()
}

// RespondAndWait runs one orchestration cycle synchronously. Under
// PolicyRaise callback failures are returned from here.
func (f *Feed) RespondAndWait(ctx context.Context) error {
	return f.respondCycle(ctx)
}

// Undo removes the last count messages and returns them in original order.
// count <= 0 is a no-op returning an empty slice.
func (f *Feed) Undo(count int) []*chat.Message {
	return f.log.TruncateLast(count)
}

// Clear empties the log and returns the removed messages in order.
func (f *Feed) Clear() []*chat.Message {
	return f.log.Drain()
}
