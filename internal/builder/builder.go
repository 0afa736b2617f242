package builder

import (
	"context"
	"fmt"

	"github.com/vk/assembly/internal/ctxlog"
	"github.com/vk/assembly/internal/datastore"
	"github.com/vk/assembly/internal/descriptor"
	"github.com/vk/assembly/internal/merge"
	"github.com/vk/assembly/internal/model"
	"github.com/vk/assembly/internal/registry"
	"github.com/vk/assembly/internal/resource"
	"golang.org/x/sync/errgroup"
)

// Builder wires the registry, the loader and the datastore cache into the
// dependency resolver.
type Builder struct {
	registry *registry.Registry
	loader   *resource.Loader
	stores   *datastore.Cache
}

// New creates a builder over the given collaborators.
func New(reg *registry.Registry, loader *resource.Loader, stores *datastore.Cache) *Builder {
	return &Builder{registry: reg, loader: loader, stores: stores}
}

// pending marks a configuration slot whose instance descriptor sits on the
// deferred queue, so rescans do not enqueue it twice.
type pending struct{}

// job is one deferred instance/start descriptor waiting for its turn on the
// breadth-first queue.
type job struct {
	ref    any
	cfg    any
	owner  *model.Instance
	origin *descriptor.Descriptor
	start  bool
	write  func(any)
}

// state tracks one Build invocation: the FIFO waiter queue enforcing
// level-by-level resolution, and the discovery order the lifecycle phases
// run over.
type state struct {
	queue      []*job
	discovery  []*model.Instance
	startRoots []*model.Instance
}

// Build constructs the instance tree for a component reference without
// running its lifecycle. Subtrees produced by start descriptors still run
// theirs, since those ask for a started instance.
func (b *Builder) Build(ctx context.Context, ref any, cfg any, parent *model.Instance) (*model.Instance, error) {
	st := &state{}
	root, err := b.run(ctx, st, ref, cfg, parent)
	if err != nil {
		return nil, err
	}
	if len(st.startRoots) > 0 {
		if err := b.runLifecycle(ctx, under(st.startRoots, st.discovery)); err != nil {
			return nil, err
		}
	}
	return root, nil
}

// Start constructs the instance tree and then runs the two-phase lifecycle
// over it: init hooks in discovery order, ready hooks in reverse.
func (b *Builder) Start(ctx context.Context, ref any, cfg any, parent *model.Instance) (*model.Instance, error) {
	st := &state{}
	root, err := b.run(ctx, st, ref, cfg, parent)
	if err != nil {
		return nil, err
	}
	if err := b.runLifecycle(ctx, st.discovery); err != nil {
		return nil, err
	}
	return root, nil
}

// run builds the root instance and then drains the deferred queue, oldest
// job first. Because every job enqueues its own children behind all jobs
// already waiting, the tree settles level by level.
func (b *Builder) run(ctx context.Context, st *state, ref any, cfg any, parent *model.Instance) (*model.Instance, error) {
	root, err := b.build(ctx, st, ref, cfg, parent, nil)
	if err != nil {
		return nil, err
	}

	for len(st.queue) > 0 {
		j := st.queue[0]
		st.queue = st.queue[1:]

		child, err := b.build(ctx, st, j.ref, j.cfg, j.owner, j.origin)
		if err != nil {
			return nil, err
		}
		j.write(child)
		if j.start {
			st.startRoots = append(st.startRoots, child)
		}
	}
	return root, nil
}

// build performs one instantiation: ensure the component is registered,
// merge configuration, and resolve the instance's dependencies at this
// level. Deferred descriptors land on the queue instead of recursing.
func (b *Builder) build(ctx context.Context, st *state, ref any, cfg any, parent *model.Instance, origin *descriptor.Descriptor) (*model.Instance, error) {
	logger := ctxlog.FromContext(ctx)

	// The configuration argument may itself be a dependency descriptor;
	// resolve it before the instance exists.
	cfgMap, err := b.resolveConfig(ctx, parent, cfg)
	if err != nil {
		return nil, err
	}

	comp, err := b.registry.Resolve(ctx, ref, nil)
	if err != nil {
		return nil, err
	}

	seq := b.registry.NextInstance(comp)
	inst := &model.Instance{
		ID:        fmt.Sprintf("%s-%d", comp.Index.String(), seq),
		Index:     comp.Index,
		Component: comp,
		Parent:    parent,
		Origin:    origin,
		Config:    merge.Integrate(cfgMap, merge.Clone(comp.Defaults).(map[string]any)),
	}
	if inst.Config == nil {
		inst.Config = map[string]any{}
	}
	st.discovery = append(st.discovery, inst)
	logger.Debug("Allocated instance.", "id", inst.ID, "parent", parentID(parent))

	// Resolve this level until no eager descriptor remains. Values written
	// by one pass may carry descriptors of their own, so rescan until the
	// configuration is quiet; deferred slots are marked and skipped.
	for {
		eagerSlots, deferredJobs := b.scan(inst)
		for _, j := range deferredJobs {
			st.queue = append(st.queue, j)
		}
		if len(eagerSlots) == 0 {
			break
		}

		results := make([]any, len(eagerSlots))
		g, gctx := errgroup.WithContext(ctx)
		for i, slot := range eagerSlots {
			g.Go(func() error {
				value, err := b.resolveEager(gctx, inst, slot.desc)
				if err != nil {
					return err
				}
				results[i] = value
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		for i, slot := range eagerSlots {
			slot.write(results[i])
		}
	}

	return inst, nil
}

// resolveConfig normalizes the configuration argument, resolving it first
// when it arrives as a descriptor.
func (b *Builder) resolveConfig(ctx context.Context, parent *model.Instance, cfg any) (map[string]any, error) {
	switch c := cfg.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return merge.Clone(c).(map[string]any), nil
	case []any:
		d, ok := descriptor.Detect(cfg)
		if !ok {
			return nil, fmt.Errorf("configuration must be an object or a dependency descriptor, got a plain list")
		}
		if d.Deferred() || d.Tag == descriptor.TagProxy {
			return nil, fmt.Errorf("configuration cannot be a %s descriptor", d.Tag)
		}
		resolved, err := b.resolveEager(ctx, parent, d)
		if err != nil {
			return nil, err
		}
		m, ok := resolved.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("configuration descriptor resolved to %T, want an object", resolved)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported configuration of type %T", cfg)
	}
}

// eagerSlot pairs a found eager descriptor with the write-back into its
// configuration slot.
type eagerSlot struct {
	desc  *descriptor.Descriptor
	write func(any)
}

// scan walks every property of the instance, nested arrays and objects
// included, collecting eager descriptors and deferring instance/start ones.
// Values that are not maps or lists are opaque leaves, which keeps
// already-formed instances, component definitions and host-tree handles out
// of the traversal; the parent back-reference never appears in the
// configuration, so the ownership cycle is never entered.
func (b *Builder) scan(inst *model.Instance) ([]eagerSlot, []*job) {
	var eager []eagerSlot
	var deferred []*job

	var walk func(v any, write func(any))
	walk = func(v any, write func(any)) {
		switch t := v.(type) {
		case map[string]any:
			for k, e := range t {
				walk(e, func(nv any) { t[k] = nv })
			}
		case []any:
			if d, ok := descriptor.Detect(v); ok {
				if d.Deferred() {
					deferred = append(deferred, &job{
						ref:    d.Arg(0),
						cfg:    d.Arg(1),
						owner:  inst,
						origin: d,
						start:  d.Tag == descriptor.TagStart,
						write:  write,
					})
					// Mark the slot so the next pass skips it.
					write(&pending{})
					return
				}
				eager = append(eager, eagerSlot{desc: d, write: write})
				return
			}
			for i, e := range t {
				walk(e, func(nv any) { t[i] = nv })
			}
		}
	}

	for k, e := range inst.Config {
		walk(e, func(nv any) { inst.Config[k] = nv })
	}
	return eager, deferred
}

// resolveEager resolves one non-deferred descriptor through the relevant
// collaborator.
func (b *Builder) resolveEager(ctx context.Context, owner *model.Instance, d *descriptor.Descriptor) (any, error) {
	ctx = datastore.WithOwner(ctx, owner)

	switch d.Tag {
	case descriptor.TagLoad:
		return b.loader.LoadChain(ctx, d.Args)

	case descriptor.TagComponent:
		return b.registry.Resolve(ctx, d.Arg(0), d.ArgMap(1))

	case descriptor.TagProxy:
		return b.newProxy(ctx, owner, d)

	case descriptor.TagStore:
		return b.stores.Open(datastore.SettingsFromMap(d.ArgMap(0)))

	case descriptor.TagGet:
		store, rest, err := b.storeFor(d)
		if err != nil {
			return nil, err
		}
		return store.Get(ctx, rest(0))

	case descriptor.TagSet:
		store, rest, err := b.storeFor(d)
		if err != nil {
			return nil, err
		}
		rec, ok := rest(0).(map[string]any)
		if !ok {
			return nil, fmt.Errorf("set descriptor needs a record, got %T", rest(0))
		}
		return store.Set(ctx, rec)

	case descriptor.TagDel:
		store, rest, err := b.storeFor(d)
		if err != nil {
			return nil, err
		}
		key, _ := rest(0).(string)
		return store.Del(ctx, key)

	default:
		return nil, descriptor.UnknownTagError{Tag: string(d.Tag)}
	}
}

// storeFor opens the datastore a get/set/del descriptor addresses. The
// descriptor's first argument must be a settings object; rest indexes the
// arguments after it.
func (b *Builder) storeFor(d *descriptor.Descriptor) (*datastore.Datastore, func(int) any, error) {
	settings := d.ArgMap(0)
	if settings == nil {
		return nil, nil, fmt.Errorf("%s descriptor needs datastore settings as its first argument", d.Tag)
	}
	store, err := b.stores.Open(datastore.SettingsFromMap(settings))
	if err != nil {
		return nil, nil, err
	}
	return store, func(i int) any { return d.Arg(i + 1) }, nil
}

// runLifecycle drives the two sequential phases over a completed tree.
// Phase A fires each instance's one-time init hook in discovery order,
// waiting for each before the next; phase B fires ready hooks in reverse
// discovery order, children before their owners. Both flags are one-shot,
// so an instance started earlier (proxy, start subtree) never re-fires.
func (b *Builder) runLifecycle(ctx context.Context, instances []*model.Instance) error {
	for _, inst := range instances {
		hooks := inst.Component.Hooks
		if hooks == nil || hooks.OnInit == nil {
			inst.MarkInit()
			continue
		}
		if inst.MarkInit() {
			if err := hooks.OnInit(ctx, inst); err != nil {
				return fmt.Errorf("init %s: %w", inst.ID, err)
			}
		}
	}

	for i := len(instances) - 1; i >= 0; i-- {
		inst := instances[i]
		hooks := inst.Component.Hooks
		if hooks == nil || hooks.OnReady == nil {
			inst.MarkReady()
			continue
		}
		if inst.MarkReady() {
			if err := hooks.OnReady(ctx, inst); err != nil {
				return fmt.Errorf("ready %s: %w", inst.ID, err)
			}
		}
	}
	return nil
}

// under filters the discovery order down to instances sitting below any of
// the given roots, roots included.
func under(roots []*model.Instance, discovery []*model.Instance) []*model.Instance {
	inRoots := make(map[*model.Instance]struct{}, len(roots))
	for _, r := range roots {
		inRoots[r] = struct{}{}
	}
	var out []*model.Instance
	for _, inst := range discovery {
		for cur := inst; cur != nil; cur = cur.Parent {
			if _, ok := inRoots[cur]; ok {
				out = append(out, inst)
				break
			}
		}
	}
	return out
}

func parentID(parent *model.Instance) string {
	if parent == nil {
		return ""
	}
	return parent.ID
}
