package responders

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/pkg/errors"

	"github.com/go-go-golems/chatfeed/pkg/feed"
)

// JSResponder executes a JavaScript response function inside a goja VM.
//
// Scripts register via registerResponder(fn). The function receives
// (contents, user) and may return:
// - a string or object, answered as a single value
// - an array, answered as a token stream
// - null or undefined, answered as no response
//
// The VM is single-threaded; one feed response runs at a time.
type JSResponder struct {
	mu sync.Mutex

	vm      *goja.Runtime
	respond goja.Callable
}

func NewJSResponder() *JSResponder {
	r := &JSResponder{vm: goja.New()}
	r.installHostAPIs()
	return r
}

func (r *JSResponder) installHostAPIs() {
	if r == nil || r.vm == nil {
		return
	}

	if err := r.vm.Set("registerResponder", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(r.vm.NewTypeError("registerResponder(fn) requires 1 argument"))
		}
		fn, ok := goja.AssertFunction(call.Arguments[0])
		if !ok {
			panic(r.vm.NewTypeError("registerResponder: argument must be a function"))
		}
		r.respond = fn
		return goja.Undefined()
	}); err != nil {
		panic(err)
	}
}

func (r *JSResponder) LoadScriptFile(path string) error {
	if r == nil {
		return errors.New("js responder: nil responder")
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("js responder: empty script path")
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "js responder: read script %q", path)
	}
	return r.LoadScriptSource(path, string(blob))
}

func (r *JSResponder) LoadScriptSource(name string, source string) error {
	if r == nil || r.vm == nil {
		return errors.New("js responder: runtime not initialized")
	}
	if strings.TrimSpace(name) == "" {
		name = "responder.js"
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.vm.RunScript(name, source); err != nil {
		return errors.Wrapf(err, "js responder: run script %q", name)
	}
	if r.respond == nil {
		return errors.Errorf("js responder: script %q did not call registerResponder", name)
	}
	return nil
}

// Callback adapts the responder into a feed callback.
func (r *JSResponder) Callback() feed.Callback {
	return func(_ context.Context, contents any, user string, _ *feed.Feed) (feed.Response, error) {
		if r == nil || r.vm == nil {
			return feed.Response{}, errors.New("js responder: runtime not initialized")
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.respond == nil {
			return feed.Response{}, errors.New("js responder: no responder registered")
		}
		res, err := r.respond(goja.Undefined(), r.vm.ToValue(contents), r.vm.ToValue(user))
		if err != nil {
			return feed.Response{}, errors.Wrap(err, "js responder: respond failed")
		}
		if res == nil || goja.IsUndefined(res) || goja.IsNull(res) {
			return feed.Value(nil), nil
		}
		exported := res.Export()
		if tokens, ok := exported.([]any); ok {
			return feed.Tokens(tokens...), nil
		}
		return feed.Value(exported), nil
	}
}

// JSFactory builds a JavaScript callback. Params: "script" (string source) or
// "script_file" (path); "script" wins when both are set.
func JSFactory(params map[string]any) (feed.Callback, error) {
	r := NewJSResponder()
	script := ""
	scriptFile := ""
	if params != nil {
		if v, ok := params["script"].(string); ok {
			script = v
		}
		if v, ok := params["script_file"].(string); ok {
			scriptFile = strings.TrimSpace(v)
		}
	}
	switch {
	case strings.TrimSpace(script) != "":
		if err := r.LoadScriptSource("responder.js", script); err != nil {
			return nil, err
		}
	case scriptFile != "":
		if err := r.LoadScriptFile(scriptFile); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("js responder: params require script or script_file")
	}
	return r.Callback(), nil
}
