package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/vk/assembly/internal/ctxlog"
	"github.com/vk/assembly/internal/merge"
	"github.com/vk/assembly/internal/model"
	"github.com/vk/assembly/internal/resource"
)

// Binder attaches the bound convenience operations (create-instance,
// create-and-start-instance) to a freshly registered component. The runtime
// provides it, closing over the instance builder.
type Binder func(c *model.Component)

// Registry holds the component definitions of one runtime instance.
type Registry struct {
	loader *resource.Loader

	mu         sync.Mutex
	components map[string]*model.Component
	hooks      map[string]*model.Hooks
	bind       Binder
}

// New creates an empty registry backed by the given loader.
func New(loader *resource.Loader) *Registry {
	return &Registry{
		loader:     loader,
		components: make(map[string]*model.Component),
		hooks:      make(map[string]*model.Hooks),
	}
}

// SetBinder installs the bound-operation factory. Components registered
// before the binder existed are bound retroactively.
func (r *Registry) SetBinder(bind Binder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bind = bind
	for _, c := range r.components {
		bind(c)
	}
}

// Register stores a component definition. Configuration passed at
// registration time is merged over the component's own defaults under the
// priority-data integration law. Registering an index that is already
// present is a no-op returning the existing definition unchanged.
func (r *Registry) Register(def *model.Component, overrides map[string]any) (*model.Component, error) {
	if def == nil || def.Index.Name == "" {
		return nil, fmt.Errorf("register component: definition has no name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := def.Index.String()
	if existing, ok := r.components[key]; ok {
		return existing, nil
	}

	def.Defaults = merge.Integrate(overrides, def.Defaults)
	if def.Hooks == nil {
		def.Hooks = r.hooks[key]
	}
	if r.bind != nil {
		r.bind(def)
	}
	r.components[key] = def
	return def, nil
}

// RegisterHooks attaches Go lifecycle hooks to an index. The hooks land on
// the component immediately when it is already registered, or at
// registration time otherwise.
func (r *Registry) RegisterHooks(index string, hooks *model.Hooks) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[index] = hooks
	if c, ok := r.components[index]; ok && c.Hooks == nil {
		c.Hooks = hooks
	}
}

// Lookup returns the component registered under an index.
func (r *Registry) Lookup(index string) (*model.Component, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.components[index]
	return c, ok
}

// NextInstance bumps and returns a component's instance counter. Only the
// registry mutates the counter.
func (r *Registry) NextInstance(c *model.Component) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.Instances++
	return c.Instances
}

// Resolve turns any accepted component reference into a registered
// definition: a *model.Component, an inline definition map, a loadable
// reference, or a plain index. An unknown plain index registers a bare
// definition so instantiation can proceed with caller configuration alone.
func (r *Registry) Resolve(ctx context.Context, ref any, overrides map[string]any) (*model.Component, error) {
	switch v := ref.(type) {
	case *model.Component:
		return r.Register(v, overrides)
	case map[string]any:
		return r.Register(componentFromMap(v), overrides)
	case string:
		if isLoadableRef(v) {
			return r.RegisterRef(ctx, v, overrides)
		}
		if c, ok := r.Lookup(v); ok {
			return c, nil
		}
		ctxlog.FromContext(ctx).Debug("Registering bare component for unknown index.", "index", v)
		return r.Register(&model.Component{Index: model.ParseIndex(v)}, overrides)
	default:
		return nil, fmt.Errorf("unsupported component reference of type %T", ref)
	}
}

// RegisterRef loads a component definition through the resource loader and
// registers it. The reference must resolve to a JSON object with at least a
// "name" field.
func (r *Registry) RegisterRef(ctx context.Context, url string, overrides map[string]any) (*model.Component, error) {
	loaded, err := r.loader.Load(ctx, &resource.Request{URL: url, Type: resource.KindData})
	if err != nil {
		return nil, err
	}
	def, ok := loaded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("component reference %s resolved to %T, want an object", url, loaded)
	}
	return r.Register(componentFromMap(def), overrides)
}

// componentFromMap builds a definition from its wire form.
func componentFromMap(m map[string]any) *model.Component {
	c := &model.Component{
		Index: model.Index{
			Name:    str(m["name"]),
			Version: str(m["version"]),
		},
		Role: str(m["role"]),
	}
	if d, ok := m["defaults"].(map[string]any); ok {
		c.Defaults = d
	}
	return c
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// isLoadableRef distinguishes a loadable reference from a plain index.
func isLoadableRef(s string) bool {
	return strings.HasPrefix(s, "http://") ||
		strings.HasPrefix(s, "https://") ||
		strings.HasSuffix(s, ".json")
}
