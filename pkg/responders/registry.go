package responders

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/go-go-golems/chatfeed/pkg/feed"
)

// Factory builds a response callback from responder-specific parameters.
type Factory func(params map[string]any) (feed.Callback, error)

// Registry maps responder names to factories.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

func (r *Registry) Register(name string, f Factory) error {
	if r == nil {
		return errors.New("responder registry is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("responder name is empty")
	}
	if f == nil {
		return errors.Errorf("responder %q: factory is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return errors.Errorf("responder %q is already registered", name)
	}
	r.factories[name] = f
	return nil
}

func (r *Registry) Build(name string, params map[string]any) (feed.Callback, error) {
	if r == nil {
		return nil, errors.New("responder registry is nil")
	}
	name = strings.TrimSpace(name)
	r.mu.Lock()
	f, ok := r.factories[name]
	r.mu.Unlock()
	if !ok {
		return nil, errors.Errorf("unknown responder %q", name)
	}
	return f(params)
}

func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewDefaultRegistry returns a registry with the built-in responders.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register("echo", EchoFactory)
	_ = r.Register("js", JSFactory)
	return r
}
