package builder

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/assembly/internal/descriptor"
	"github.com/vk/assembly/internal/model"
)

// Proxy is the stand-in a proxy descriptor resolves to. The target instance
// is not built until the first Materialize call; after that every call
// returns the same instance (or the same error). The dependency scan treats
// a proxy as a leaf, so its still-unresolved reference and configuration
// are never searched.
type Proxy struct {
	b     *Builder
	owner *model.Instance
	ref   any
	cfg   any

	once sync.Once
	inst *model.Instance
	err  error
}

func (b *Builder) newProxy(ctx context.Context, owner *model.Instance, d *descriptor.Descriptor) (*Proxy, error) {
	if d.Arg(0) == nil {
		return nil, fmt.Errorf("proxy descriptor needs a component reference")
	}
	// The embedded configuration resolves now when it is itself a
	// descriptor; instantiation still waits for Materialize.
	cfg := d.Arg(1)
	if cd, ok := descriptor.Detect(cfg); ok && !cd.Deferred() && cd.Tag != descriptor.TagProxy {
		resolved, err := b.resolveEager(ctx, owner, cd)
		if err != nil {
			return nil, err
		}
		cfg = resolved
	}
	return &Proxy{b: b, owner: owner, ref: d.Arg(0), cfg: cfg}, nil
}

// Materialize builds and starts the target instance. The work happens once;
// concurrent callers block until the first attempt settles.
func (p *Proxy) Materialize(ctx context.Context) (*model.Instance, error) {
	p.once.Do(func() {
		p.inst, p.err = p.b.Start(ctx, p.ref, p.cfg, p.owner)
	})
	return p.inst, p.err
}
