package tool

import (
	"fmt"
	"sync"

	"github.com/hupe1980/weathermesh/core"
	"github.com/hupe1980/weathermesh/model"
)

// Policy restricts which registered tools are advertised to (and callable by)
// the model on a given invocation. Include and Exclude are mutually exclusive;
// leaving both empty allows every tool.
type Policy struct {
	Include []string `json:"include,omitempty" mapstructure:"include"`
	Exclude []string `json:"exclude,omitempty" mapstructure:"exclude"`
}

// IsZero reports whether the policy allows every tool.
func (p Policy) IsZero() bool { return len(p.Include) == 0 && len(p.Exclude) == 0 }

// Registry keeps the mapping between tool names and implementations. Tools are
// kept in registration order so declarations sent to the model are stable.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register inserts a tool when its name is not in use. A second registration
// under the same name fails with core.ErrDuplicateTool.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("tool is nil")
	}
	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", core.ErrDuplicateTool, name)
	}

	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// MustRegister registers tools and panics on the first failure. Intended for
// static wiring at startup where a duplicate is a programming error.
func (r *Registry) MustRegister(tools ...Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Resolve fetches a tool by name or fails with core.ErrUnknownTool.
func (r *Registry) Resolve(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, exists := r.tools[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownTool, name)
	}
	return t, nil
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Tools produces a snapshot of all registered tools in registration order.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// AllowedSubset returns a filtered registry view honoring the policy.
// Naming an unregistered tool in Include fails with core.ErrUnknownTool so
// configuration mistakes surface before any exchange starts.
func (r *Registry) AllowedSubset(p Policy) (*Registry, error) {
	if len(p.Include) > 0 && len(p.Exclude) > 0 {
		return nil, fmt.Errorf("%w: include and exclude lists are mutually exclusive", core.ErrInvalidToolPolicy)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	sub := NewRegistry()

	switch {
	case len(p.Include) > 0:
		for _, name := range p.Include {
			t, ok := r.tools[name]
			if !ok {
				return nil, fmt.Errorf("%w: %s", core.ErrUnknownTool, name)
			}
			if _, dup := sub.tools[name]; dup {
				continue
			}
			sub.tools[name] = t
			sub.order = append(sub.order, name)
		}
	default:
		excluded := make(map[string]bool, len(p.Exclude))
		for _, name := range p.Exclude {
			excluded[name] = true
		}
		for _, name := range r.order {
			if excluded[name] {
				continue
			}
			sub.tools[name] = r.tools[name]
			sub.order = append(sub.order, name)
		}
	}

	return sub, nil
}

// Declarations renders the registered tools as model tool definitions.
func (r *Registry) Declarations() []model.ToolDefinition {
	tools := r.Tools()
	defs := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}
