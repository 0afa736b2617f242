package runtime

import (
	"context"
	"net/http"
	"os"

	"github.com/vk/assembly/internal/builder"
	"github.com/vk/assembly/internal/datastore"
	"github.com/vk/assembly/internal/model"
	"github.com/vk/assembly/internal/registry"
	"github.com/vk/assembly/internal/resource"
)

// Runtime owns the collaborators of one component runtime. All component
// trees built through it share the same resource cache, registry and
// datastore identity map.
type Runtime struct {
	Loader   *resource.Loader
	Registry *registry.Registry
	Stores   *datastore.Cache
	Builder  *builder.Builder
}

// Options tune runtime construction. The zero value is usable.
type Options struct {
	// Client overrides the loader's HTTP client.
	Client *http.Client
	// DataDir hosts the embedded datastore tier's database files; the
	// system temp directory is used when empty.
	DataDir string
}

// New constructs a fully wired runtime.
func New(opts Options) *Runtime {
	var loader *resource.Loader
	if opts.Client != nil {
		loader = resource.NewLoaderWithClient(opts.Client)
	} else {
		loader = resource.NewLoader()
	}

	dataDir := opts.DataDir
	if dataDir == "" {
		dataDir = os.TempDir()
	}

	reg := registry.New(loader)
	stores := datastore.NewCache(loader, dataDir)
	rt := &Runtime{
		Loader:   loader,
		Registry: reg,
		Stores:   stores,
		Builder:  builder.New(reg, loader, stores),
	}
	reg.SetBinder(rt.bind)
	return rt
}

// bind attaches the bound create-instance operations to a component
// definition, closing over the builder.
func (r *Runtime) bind(c *model.Component) {
	c.New = func(ctx context.Context, cfg map[string]any) (*model.Instance, error) {
		return r.Builder.Build(ctx, c, cfg, nil)
	}
	c.Start = func(ctx context.Context, cfg map[string]any) (*model.Instance, error) {
		return r.Builder.Start(ctx, c, cfg, nil)
	}
}

// Close releases every datastore tier the runtime opened.
func (r *Runtime) Close() error {
	return r.Stores.Close()
}
