package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/chatfeed/pkg/chat"
)

// respondCycle runs one full orchestration cycle: trigger, placeholder race,
// drain, settle. Re-entrant triggers while a cycle is active are ignored.
func (f *Feed) respondCycle(ctx context.Context) error {
	if f == nil || f.callback == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	f.mu.Lock()
	if f.busy {
		f.mu.Unlock()
		return nil
	}
	f.busy = true
	prevDisabled := f.disabled
	f.disabled = true
	f.mu.Unlock()

	defer func() {
		f.replacePlaceholder(nil)
		f.mu.Lock()
		f.disabled = prevDisabled
		f.busy = false
		f.mu.Unlock()
	}()

	tail := f.log.Last()
	if tail == nil {
		return nil
	}
	numEntries := f.log.Len()

	done := make(chan struct{})
	shape := make(chan bool, 1)
	var cbErr error
	go func() {
		defer close(done)
		cbErr = f.handleCallback(ctx, tail, shape)
	}()
	f.schedulePlaceholder(ctx, done, shape, numEntries)
	<-done

	if cbErr == nil {
		return nil
	}
	switch f.errorPolicy {
	case PolicyIgnore:
		return nil
	case PolicyVerbose:
		body := fmt.Sprintf("```\n%+v\n```", cbErr)
		if _, err := f.Send(ctx, SendInput{Value: body, User: ExceptionUser, NoRespond: true}); err != nil {
			return errors.Wrap(err, "post verbose callback error")
		}
		return nil
	case PolicyRaise:
		return errors.Wrap(cbErr, "callback failed")
	default: // PolicySummary
		if _, err := f.Send(ctx, SendInput{Value: cbErr.Error(), User: ExceptionUser, NoRespond: true}); err != nil {
			return errors.Wrap(err, "post callback error summary")
		}
		return nil
	}
}

// handleCallback invokes the callback for msg and drains its response.
// The response shape (sync or async) is reported on the shape channel for the
// placeholder race.
func (f *Feed) handleCallback(ctx context.Context, msg *chat.Message, shape chan<- bool) error {
	contents, user, _ := msg.Fields()
	resp, err := f.callback(ctx, contents, user, f)
	if err != nil {
		return err
	}
	select {
	case shape <- resp.synchronous():
	default:
	}
	_, err = f.drain(ctx, resp)
	return err
}

// drain serializes the response into the log. The first produced value
// creates or replaces the placeholder message; every later value updates that
// same message in place, strictly in production order.
func (f *Feed) drain(ctx context.Context, resp Response) (*chat.Message, error) {
	var current *chat.Message
	var err error
	switch resp.kind {
	case kindValue:
		return f.upsert(resp.value, nil)
	case kindStream:
		if resp.next == nil {
			return nil, nil
		}
		for {
			v, ok := resp.next()
			if !ok {
				return current, nil
			}
			current, err = f.upsert(v, current)
			if err != nil {
				return current, err
			}
		}
	case kindAsyncStream:
		if resp.ch == nil {
			return nil, nil
		}
		for {
			select {
			case <-ctx.Done():
				return current, ctx.Err()
			case v, ok := <-resp.ch:
				if !ok {
					return current, nil
				}
				current, err = f.upsert(v, current)
				if err != nil {
					return current, err
				}
			}
		}
	case kindFuture:
		if resp.wait == nil {
			return nil, nil
		}
		v, werr := resp.wait(ctx)
		if werr != nil {
			return nil, werr
		}
		return f.upsert(v, nil)
	}
	return nil, nil
}

// upsert merges one produced value into the log. A nil value is a no-op that
// keeps the current message. When current is set the value updates it in
// place; a *Message used as the value contributes its own content, user and
// avatar, which take precedence over the target's.
func (f *Feed) upsert(value any, current *chat.Message) (*chat.Message, error) {
	if value == nil {
		return current, nil
	}

	user := f.callbackUser
	avatar := ""
	if rec, ok := value.(map[string]any); ok {
		if u, ok := rec["user"].(string); ok && u != "" {
			user = u
		}
		if a, ok := rec["avatar"].(string); ok && a != "" {
			avatar = a
		}
	}

	if current != nil {
		if msg, ok := value.(*chat.Message); ok {
			obj, msgUser, msgAvatar := msg.Fields()
			if err := current.Update(obj, msgUser, msgAvatar); err != nil {
				return current, err
			}
		} else if err := current.Update(value, user, avatar); err != nil {
			return current, err
		}
		f.log.NotifyUpdated(current)
		return current, nil
	}

	if msg, ok := value.(*chat.Message); ok {
		f.replacePlaceholder(msg)
		return msg, nil
	}

	rec, ok := value.(map[string]any)
	if !ok {
		rec = map[string]any{"object": value}
	}
	msg, err := f.builder.Build(rec, user, avatar)
	if err != nil {
		return nil, err
	}
	f.replacePlaceholder(msg)
	return msg, nil
}

// replacePlaceholder swaps the placeholder for msg in its slot when present,
// removes it when msg is nil, and appends msg when no placeholder is in the
// log. Real output is never dropped.
func (f *Feed) replacePlaceholder(msg *chat.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := -1
	if f.placeholderThreshold > 0 && f.placeholder != nil {
		idx = f.placeholderIdx
		if idx < 0 || f.log.At(idx) != f.placeholder {
			idx = f.log.IndexOf(f.placeholder)
		}
	}

	if idx >= 0 {
		if msg != nil {
			f.log.ReplaceAt(idx, msg)
		} else {
			f.log.RemoveAt(idx)
		}
		f.placeholderIdx = -1
		return
	}
	if msg != nil {
		f.log.Append(msg)
	}
}

// schedulePlaceholder races the placeholder against the callback task. The
// race is abandoned once the task completes or the log gains an entry; sync
// response shapes show the placeholder as soon as they are classified.
func (f *Feed) schedulePlaceholder(ctx context.Context, done <-chan struct{}, shape <-chan bool, numEntries int) {
	if f.placeholderThreshold <= 0 {
		return
	}

	start := time.Now()
	syncKnown := false
	isSync := false
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case s := <-shape:
			syncKnown, isSync = true, s
		case <-time.After(f.pollInterval):
		}
		if f.log.Len() != numEntries {
			return
		}
		if (syncKnown && isSync) || time.Since(start) > f.placeholderThreshold {
			f.showPlaceholder(numEntries)
			return
		}
	}
}

func (f *Feed) showPlaceholder(numEntries int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeholder == nil || f.log.Len() != numEntries {
		return
	}
	f.placeholderIdx = f.log.Append(f.placeholder)
}
