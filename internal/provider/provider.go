package provider

import (
	"fmt"
	"sort"

	"github.com/masterchef/catalogcheck/internal/config"
)

// Handler checks resources of one type and returns their normalized
// parameters.
type Handler interface {
	Type() string
	Validate(resource config.Resource) (map[string]any, error)
}

// ParamError reports a parameter that violates a resource type's schema.
type ParamError struct {
	Type     string
	Resource string
	Param    string
	Message  string
}

func (e *ParamError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("%s[%s]: %s", e.Type, e.Resource, e.Message)
	}
	return fmt.Sprintf("%s[%s]: parameter %q %s", e.Type, e.Resource, e.Param, e.Message)
}

type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: map[string]Handler{},
	}
}

func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("handler is nil")
	}
	t := h.Type()
	if t == "" {
		return fmt.Errorf("handler type is empty")
	}
	if _, exists := r.handlers[t]; exists {
		return fmt.Errorf("handler already registered for type %q", t)
	}
	r.handlers[t] = h
	return nil
}

func (r *Registry) MustRegister(h Handler) {
	if err := r.Register(h); err != nil {
		panic(err)
	}
}

func (r *Registry) Lookup(resourceType string) (Handler, bool) {
	h, ok := r.handlers[resourceType]
	return h, ok
}

// Types lists the registered resource types in sorted order.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
