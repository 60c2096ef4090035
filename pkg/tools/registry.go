package tools

import (
	"fmt"
	"sort"
	"sync"

	"github.com/openresponses/openresponses/pkg/api"
	"github.com/openresponses/openresponses/pkg/registry"
)

// Registry maps canonical names and aliases to tools. It is populated at
// startup and read-only afterwards.
type Registry struct {
	*registry.BaseRegistry[*Tool]

	mu      sync.RWMutex
	aliases map[string]string
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		BaseRegistry: registry.NewBaseRegistry[*Tool](),
		aliases:      make(map[string]string),
	}
}

// RegisterTool adds a tool under its canonical name and every alias.
// Duplicate canonical names or aliases are rejected.
func (r *Registry) RegisterTool(t *Tool) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.aliases[t.Name]; taken {
		return fmt.Errorf("tool name %q already registered as an alias", t.Name)
	}
	for _, alias := range t.Aliases {
		if _, exists := r.Get(alias); exists {
			return fmt.Errorf("alias %q collides with a registered tool", alias)
		}
		if _, taken := r.aliases[alias]; taken {
			return fmt.Errorf("alias %q already registered", alias)
		}
	}

	if err := r.Register(t.Name, t); err != nil {
		return err
	}
	for _, alias := range t.Aliases {
		r.aliases[alias] = t.Name
	}
	return nil
}

// Resolve returns the tool registered under name, canonical first then
// alias. Lookup is case-sensitive. Returns nil when unknown.
func (r *Registry) Resolve(name string) *Tool {
	if t, ok := r.Get(name); ok {
		return t
	}

	r.mu.RLock()
	canonical, ok := r.aliases[name]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	t, _ := r.Get(canonical)
	return t
}

// RequestTools is the request-scoped routing table: every tool name the
// request declares, mapped to its registered tool or marked client-side.
type RequestTools struct {
	resolved map[string]*Tool
	client   map[string]bool
}

// RequestAliases builds the routing table from the request's tool list. A
// function tool whose name resolves in the registry (directly or via alias)
// routes to that tool; one that does not is a client-side tool. A
// file_search entry routes to the registered file_search tool.
func RequestAliases(r *Registry, specs []api.ToolSpec) *RequestTools {
	rt := &RequestTools{
		resolved: make(map[string]*Tool),
		client:   make(map[string]bool),
	}
	for _, spec := range specs {
		switch spec.Type {
		case api.ToolTypeFunction:
			if t := r.Resolve(spec.Name); t != nil {
				rt.resolved[spec.Name] = t
			} else {
				rt.client[spec.Name] = true
			}
		case api.ToolTypeFileSearch:
			if t := r.Resolve("file_search"); t != nil {
				rt.resolved["file_search"] = t
			}
		}
	}
	return rt
}

// Lookup returns the tool routed for a request tool name, or nil.
func (rt *RequestTools) Lookup(name string) *Tool {
	return rt.resolved[name]
}

// IsClientTool reports whether the request declared name as a tool that
// only the caller can execute.
func (rt *RequestTools) IsClientTool(name string) bool {
	return rt.client[name]
}

// Declared returns the function-tool declarations to advertise upstream for
// the routed tools, sorted by name.
func (rt *RequestTools) Declared() []api.FunctionTool {
	out := make([]api.FunctionTool, 0, len(rt.resolved))
	for name, t := range rt.resolved {
		ft := t.FunctionTool()
		ft.Function.Name = name
		out = append(out, ft)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Function.Name < out[j].Function.Name })
	return out
}
