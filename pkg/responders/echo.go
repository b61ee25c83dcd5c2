package responders

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-go-golems/chatfeed/pkg/feed"
)

const defaultEchoPrefix = "ECHO:"

// NewEchoCallback returns a callback that repeats the incoming contents with
// a prefix. Useful for wiring tests and as a smoke-test responder.
func NewEchoCallback(prefix string) feed.Callback {
	if prefix == "" {
		prefix = defaultEchoPrefix
	}
	return func(_ context.Context, contents any, _ string, _ *feed.Feed) (feed.Response, error) {
		return feed.Value(fmt.Sprintf("%s%v", prefix, contents)), nil
	}
}

// EchoFactory builds an echo callback. Params: "prefix" (string, optional).
func EchoFactory(params map[string]any) (feed.Callback, error) {
	prefix := ""
	if params != nil {
		if v, ok := params["prefix"].(string); ok {
			prefix = strings.TrimSpace(v)
		}
	}
	return NewEchoCallback(prefix), nil
}
