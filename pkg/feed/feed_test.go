package feed

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/chatfeed/pkg/chat"
)

func mustSend(t *testing.T, f *Feed, value any) *chat.Message {
	t.Helper()
	msg, err := f.Send(context.Background(), SendInput{Value: value, NoRespond: true})
	require.NoError(t, err)
	return msg
}

func contents(f *Feed) []string {
	snapshot := f.Log().Snapshot()
	out := make([]string, 0, len(snapshot))
	for _, m := range snapshot {
		out = append(out, m.Text())
	}
	return out
}

func TestUndo_NonPositiveCount(t *testing.T) {
	f := New("test")
	mustSend(t, f, "a")
	mustSend(t, f, "b")

	for _, count := range []int{0, -1, -100} {
		require.Empty(t, f.Undo(count))
		require.Equal(t, []string{"a", "b"}, contents(f))
	}
}

func TestUndo_ThenReappendRestoresLog(t *testing.T) {
	f := New("test")
	for _, v := range []string{"a", "b", "c", "d"} {
		mustSend(t, f, v)
	}
	original := f.Log().Snapshot()

	undone := f.Undo(2)
	require.Len(t, undone, 2)
	require.Equal(t, []string{"a", "b"}, contents(f))

	for _, m := range undone {
		f.Log().Append(m)
	}
	require.Equal(t, original, f.Log().Snapshot())
}

func TestUndo_MoreThanLength(t *testing.T) {
	f := New("test")
	mustSend(t, f, "a")
	require.Len(t, f.Undo(10), 1)
	require.Empty(t, contents(f))
}

func TestClear_ReturnsPriorContentsInOrder(t *testing.T) {
	f := New("test")
	for _, v := range []string{"a", "b", "c"} {
		mustSend(t, f, v)
	}
	cleared := f.Clear()
	require.Len(t, cleared, 3)
	require.Equal(t, "a", cleared[0].Text())
	require.Equal(t, "c", cleared[2].Text())
	require.Zero(t, f.Log().Len())
}

func TestDrain_GeneratorYieldsSingleMessage(t *testing.T) {
	f := New("test", WithCallback(func(context.Context, any, string, *Feed) (Response, error) {
		return Tokens("a", "b", "c"), nil
	}))
	mustSend(t, f, "hi")
	require.NoError(t, f.RespondAndWait(context.Background()))

	require.Equal(t, []string{"hi", "c"}, contents(f))
	require.Equal(t, DefaultCallbackUser, f.Log().Last().User)
}

func TestDrain_NilTokensAreNoOps(t *testing.T) {
	f := New("test", WithCallback(func(context.Context, any, string, *Feed) (Response, error) {
		return Tokens("a", nil, "b"), nil
	}))
	mustSend(t, f, "hi")
	require.NoError(t, f.RespondAndWait(context.Background()))
	require.Equal(t, []string{"hi", "b"}, contents(f))
}

func TestDrain_AsyncStream(t *testing.T) {
	ch := make(chan any, 3)
	ch <- "x"
	ch <- "y"
	ch <- "z"
	close(ch)
	f := New("test", WithCallback(func(context.Context, any, string, *Feed) (Response, error) {
		return AsyncStream(ch), nil
	}))
	mustSend(t, f, "hi")
	require.NoError(t, f.RespondAndWait(context.Background()))
	require.Equal(t, []string{"hi", "z"}, contents(f))
}

func TestDrain_Future(t *testing.T) {
	f := New("test", WithCallback(func(context.Context, any, string, *Feed) (Response, error) {
		return Future(func(context.Context) (any, error) { return "later", nil }), nil
	}))
	mustSend(t, f, "hi")
	require.NoError(t, f.RespondAndWait(context.Background()))
	require.Equal(t, []string{"hi", "later"}, contents(f))
}

func TestDrain_MessageValueOverridesTargetIdentity(t *testing.T) {
	first := chat.NewMessage("one", "First", "1")
	second := chat.NewMessage("two", "Second", "2")
	f := New("test", WithCallback(func(context.Context, any, string, *Feed) (Response, error) {
		return Tokens(first, second), nil
	}))
	mustSend(t, f, "hi")
	require.NoError(t, f.RespondAndWait(context.Background()))

	require.Equal(t, 2, f.Log().Len())
	got := f.Log().Last()
	require.Same(t, first, got)
	require.Equal(t, "two", got.Text())
	require.Equal(t, "Second", got.User)
	require.Equal(t, "2", got.Avatar)
}

func TestPlaceholder_ThresholdZeroNeverShows(t *testing.T) {
	f := New("test",
		WithPlaceholderThreshold(0),
		WithPollInterval(2*time.Millisecond),
		WithCallback(func(context.Context, any, string, *Feed) (Response, error) {
			return Future(func(context.Context) (any, error) {
				time.Sleep(30 * time.Millisecond)
				return "done", nil
			}), nil
		}))
	mustSend(t, f, "hi")

	sawPlaceholder := atomic.Bool{}
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-time.After(time.Millisecond):
				for _, m := range f.Log().Snapshot() {
					if m.User == PlaceholderUser {
						sawPlaceholder.Store(true)
					}
				}
			}
		}
	}()
	require.NoError(t, f.RespondAndWait(context.Background()))
	close(stop)

	require.False(t, sawPlaceholder.Load())
	require.Equal(t, []string{"hi", "done"}, contents(f))
}

func TestPlaceholder_ShownDuringSlowCallbackThenReplaced(t *testing.T) {
	waitForPlaceholder := func(f *Feed) bool {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			for _, m := range f.Log().Snapshot() {
				if m.User == PlaceholderUser {
					return true
				}
			}
			time.Sleep(time.Millisecond)
		}
		return false
	}

	var f *Feed
	f = New("test",
		WithPlaceholderThreshold(5*time.Millisecond),
		WithPollInterval(time.Millisecond),
		WithCallback(func(context.Context, any, string, *Feed) (Response, error) {
			ch := make(chan any, 1)
			go func() {
				defer close(ch)
				if waitForPlaceholder(f) {
					ch <- "done"
				}
			}()
			return AsyncStream(ch), nil
		}))
	mustSend(t, f, "hi")
	require.NoError(t, f.RespondAndWait(context.Background()))

	require.Equal(t, []string{"hi", "done"}, contents(f))
	for _, m := range f.Log().Snapshot() {
		require.NotEqual(t, PlaceholderUser, m.User)
	}
}

func TestSend_ValidationErrorAppendsNothing(t *testing.T) {
	f := New("test")
	_, err := f.Send(context.Background(), SendInput{Value: map[string]any{"value": "a", "object": "b"}})
	require.Error(t, err)
	require.True(t, errors.Is(err, chat.ErrValidation))
	require.Zero(t, f.Log().Len())
}

func TestSend_PrebuiltMessageWithOverridesConflicts(t *testing.T) {
	f := New("test")
	msg := chat.NewMessage("x", "Someone", "")
	_, err := f.Send(context.Background(), SendInput{Value: msg, User: "Other", NoRespond: true})
	require.Error(t, err)
	require.True(t, errors.Is(err, chat.ErrConflict))
	require.Zero(t, f.Log().Len())
}

func failingCallback(context.Context, any, string, *Feed) (Response, error) {
	return Response{}, errors.New("boom")
}

func TestErrorPolicy_Summary(t *testing.T) {
	f := New("test", WithCallback(failingCallback), WithErrorPolicy(PolicySummary))
	mustSend(t, f, "hi")
	require.NoError(t, f.RespondAndWait(context.Background()))

	require.Equal(t, 2, f.Log().Len())
	last := f.Log().Last()
	require.Equal(t, ExceptionUser, last.User)
	require.Equal(t, chat.ErrorAvatar, last.Avatar)
	require.Contains(t, last.Text(), "boom")
}

func TestErrorPolicy_Ignore(t *testing.T) {
	f := New("test", WithCallback(failingCallback), WithErrorPolicy(PolicyIgnore))
	mustSend(t, f, "hi")
	require.NoError(t, f.RespondAndWait(context.Background()))
	require.Equal(t, []string{"hi"}, contents(f))
}

func TestErrorPolicy_Raise(t *testing.T) {
	f := New("test", WithCallback(failingCallback), WithErrorPolicy(PolicyRaise))
	mustSend(t, f, "hi")
	err := f.RespondAndWait(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
	require.Equal(t, []string{"hi"}, contents(f))
}

func TestErrorPolicy_Verbose(t *testing.T) {
	f := New("test", WithCallback(failingCallback), WithErrorPolicy(PolicyVerbose))
	mustSend(t, f, "hi")
	require.NoError(t, f.RespondAndWait(context.Background()))

	last := f.Log().Last()
	require.Equal(t, ExceptionUser, last.User)
	require.Contains(t, last.Text(), "```")
	require.Contains(t, last.Text(), "boom")
}

func TestEndToEnd_EchoCallback(t *testing.T) {
	f := New("test", WithCallback(func(_ context.Context, contents any, _ string, _ *Feed) (Response, error) {
		return Value("ECHO:" + contents.(string)), nil
	}))
	msg, err := f.Send(context.Background(), SendInput{Value: "hi"})
	require.NoError(t, err)
	require.Equal(t, "hi", msg.Text())

	require.Eventually(t, func() bool { return f.Log().Len() == 2 }, 2*time.Second, 5*time.Millisecond)
	snapshot := f.Log().Snapshot()
	require.Equal(t, "hi", snapshot[0].Text())
	require.Equal(t, "User", snapshot[0].User)
	require.Equal(t, "ECHO:hi", snapshot[1].Text())
	require.Equal(t, DefaultCallbackUser, snapshot[1].User)
}

func TestRespond_ReentrantTriggerIgnored(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	f := New("test", WithCallback(func(context.Context, any, string, *Feed) (Response, error) {
		calls.Add(1)
		return Future(func(context.Context) (any, error) {
			<-release
			return "done", nil
		}), nil
	}))
	mustSend(t, f, "hi")

	ctx := context.Background()
	f.Respond(ctx)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	f.Respond(ctx)
	time.Sleep(10 * time.Millisecond)
	close(release)

	require.Eventually(t, func() bool { return f.Log().Len() == 2 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, int32(1), calls.Load())
}

func TestOrchestration_RestoresExternalDisabledFlag(t *testing.T) {
	f := New("test", WithCallback(func(context.Context, any, string, *Feed) (Response, error) {
		return Value("ok"), nil
	}))
	mustSend(t, f, "hi")
	f.SetDisabled(true)
	require.NoError(t, f.RespondAndWait(context.Background()))
	require.True(t, f.Disabled())
}

func TestOrchestration_NoCallbackIsNoOp(t *testing.T) {
	f := New("test")
	mustSend(t, f, "hi")
	require.NoError(t, f.RespondAndWait(context.Background()))
	require.Equal(t, []string{"hi"}, contents(f))
}

func TestStreamToken_AppendsToTarget(t *testing.T) {
	f := New("test")
	ctx := context.Background()

	msg, err := f.StreamToken(ctx, StreamInput{Value: "Hello"})
	require.NoError(t, err)
	require.Equal(t, 1, f.Log().Len())

	msg, err = f.StreamToken(ctx, StreamInput{Value: " World", Target: msg})
	require.NoError(t, err)
	require.Equal(t, "Hello World", msg.Text())
	require.Equal(t, 1, f.Log().Len())
}

func TestStreamToken_MessageValueTriggersFullUpdate(t *testing.T) {
	f := New("test")
	ctx := context.Background()

	target, err := f.StreamToken(ctx, StreamInput{Value: "draft"})
	require.NoError(t, err)

	src := chat.NewMessage("final", "Agent", "A")
	got, err := f.StreamToken(ctx, StreamInput{Value: src, Target: target})
	require.NoError(t, err)
	require.Same(t, target, got)
	require.Equal(t, "final", got.Text())
	require.Equal(t, "Agent", got.User)
}

func TestStreamToken_ConflictOnMessageWithOverrides(t *testing.T) {
	f := New("test")
	msg := chat.NewMessage("x", "Someone", "")
	_, err := f.StreamToken(context.Background(), StreamInput{Value: msg, User: "Other"})
	require.Error(t, err)
	require.True(t, errors.Is(err, chat.ErrConflict))
}

func TestLog_NotifierReceivesEvents(t *testing.T) {
	var events []LogEventType
	f := New("test", WithNotifier(func(ev LogEvent) { events = append(events, ev.Type) }))
	msg := mustSend(t, f, "a")
	f.Log().NotifyUpdated(msg)
	f.Undo(1)
	f.Clear()

	require.Equal(t, []LogEventType{LogAppend, LogUpdate, LogRemove, LogClear}, events)
}
