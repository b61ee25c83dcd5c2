package responders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/chatfeed/pkg/feed"
)

func runThroughFeed(t *testing.T, cb feed.Callback, prompt string) *feed.Log {
	t.Helper()
	f := feed.New("test", feed.WithCallback(cb))
	_, err := f.Send(context.Background(), feed.SendInput{Value: prompt, NoRespond: true})
	require.NoError(t, err)
	require.NoError(t, f.RespondAndWait(context.Background()))
	return f.Log()
}

func TestEchoCallback(t *testing.T) {
	log := runThroughFeed(t, NewEchoCallback(""), "hi")
	require.Equal(t, 2, log.Len())
	require.Equal(t, "ECHO:hi", log.Last().Text())
}

func TestEchoFactoryCustomPrefix(t *testing.T) {
	cb, err := EchoFactory(map[string]any{"prefix": "R:"})
	require.NoError(t, err)
	log := runThroughFeed(t, cb, "hi")
	require.Equal(t, "R:hi", log.Last().Text())
}

func TestJSResponderValue(t *testing.T) {
	cb, err := JSFactory(map[string]any{
		"script": `registerResponder(function(contents, user) { return "JS:" + contents; });`,
	})
	require.NoError(t, err)
	log := runThroughFeed(t, cb, "hi")
	require.Equal(t, 2, log.Len())
	require.Equal(t, "JS:hi", log.Last().Text())
}

func TestJSResponderTokenStream(t *testing.T) {
	cb, err := JSFactory(map[string]any{
		"script": `registerResponder(function(contents) { return [contents + "!", contents + "!!"]; });`,
	})
	require.NoError(t, err)
	log := runThroughFeed(t, cb, "hi")
	require.Equal(t, 2, log.Len())
	require.Equal(t, "hi!!", log.Last().Text())
}

func TestJSResponderNullMeansNoReply(t *testing.T) {
	cb, err := JSFactory(map[string]any{
		"script": `registerResponder(function() { return null; });`,
	})
	require.NoError(t, err)
	log := runThroughFeed(t, cb, "hi")
	require.Equal(t, 1, log.Len())
}

func TestJSResponderSeesUser(t *testing.T) {
	cb, err := JSFactory(map[string]any{
		"script": `registerResponder(function(contents, user) { return user + " said " + contents; });`,
	})
	require.NoError(t, err)
	f := feed.New("test", feed.WithCallback(cb))
	_, err = f.Send(context.Background(), feed.SendInput{Value: "hi", User: "Ada", NoRespond: true})
	require.NoError(t, err)
	require.NoError(t, f.RespondAndWait(context.Background()))
	require.Equal(t, "Ada said hi", f.Log().Last().Text())
}

func TestJSFactoryRequiresScript(t *testing.T) {
	_, err := JSFactory(nil)
	require.Error(t, err)
}

func TestJSFactoryRejectsScriptWithoutRegistration(t *testing.T) {
	_, err := JSFactory(map[string]any{"script": `var x = 1;`})
	require.Error(t, err)
}

func TestRegistry(t *testing.T) {
	r := NewDefaultRegistry()
	require.Equal(t, []string{"echo", "js"}, r.Names())

	cb, err := r.Build("echo", nil)
	require.NoError(t, err)
	require.NotNil(t, cb)

	_, err = r.Build("missing", nil)
	require.Error(t, err)

	require.Error(t, r.Register("echo", EchoFactory))
}
