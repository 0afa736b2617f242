// Package model holds the core domain types shared by the registry, the
// instance builder and the datastore: component definitions, live instances
// and the lifecycle hook contracts they implement.
package model

import (
	"context"
	"strings"
	"sync"

	"github.com/vk/assembly/internal/descriptor"
)

// IndexSeparator joins a component name and version into a registry index.
const IndexSeparator = "/"

// Index is the unique, immutable registry key of a component: its name
// alone, or name plus version when versioned.
type Index struct {
	Name    string
	Version string
}

// String renders the index in its canonical "name" or "name/version" form.
func (i Index) String() string {
	if i.Version == "" {
		return i.Name
	}
	return i.Name + IndexSeparator + i.Version
}

// ParseIndex splits a canonical index string back into its parts.
func ParseIndex(s string) Index {
	name, version, _ := strings.Cut(s, IndexSeparator)
	return Index{Name: name, Version: version}
}

// InitFunc is a one-time initialization hook. The builder invokes it exactly
// once per instance, in discovery order, and waits for it to return before
// initializing the next instance.
type InitFunc func(ctx context.Context, inst *Instance) error

// ReadyFunc runs after the whole tree is initialized, children before their
// owners.
type ReadyFunc func(ctx context.Context, inst *Instance) error

// Hooks bundles the lifecycle functions a component implements. Either hook
// may be nil.
type Hooks struct {
	OnInit  InitFunc
	OnReady ReadyFunc
}

// Component is a registered component definition. Instances field is the
// running instance counter; it is mutated only by the registry.
type Component struct {
	Index    Index
	Role     string
	Defaults map[string]any
	Hooks    *Hooks

	// Instances counts how many instances the registry has created from
	// this definition.
	Instances int

	// New builds an instance of this component. Start builds one and runs
	// its init/ready lifecycle. Both are bound by the runtime at
	// registration time.
	New   func(ctx context.Context, cfg map[string]any) (*Instance, error)
	Start func(ctx context.Context, cfg map[string]any) (*Instance, error)
}

// Instance is a live, configured object created from a component definition.
// It owns no other instance; Component and Parent are non-owning references,
// and Parent is explicitly excluded from configuration traversal to keep the
// ownership cycle out of the dependency scan.
type Instance struct {
	ID        string
	Index     Index
	Component *Component
	Parent    *Instance
	Origin    *descriptor.Descriptor

	// Config holds the configuration-derived fields, defaults first, caller
	// overrides merged on top. Resolved dependency values are written back
	// into it in place.
	Config map[string]any

	mu        sync.Mutex
	initDone  bool
	readyDone bool
}

// Role returns the instance's role: the "role" configuration field when
// present, otherwise the component's declared role.
func (in *Instance) Role() string {
	if r, ok := in.Config["role"].(string); ok && r != "" {
		return r
	}
	if in.Component != nil {
		return in.Component.Role
	}
	return ""
}

// Field returns a configuration field by name.
func (in *Instance) Field(name string) any {
	return in.Config[name]
}

// MarkInit flips the one-shot init flag. It returns true only on the first
// call, so an init hook can never fire twice for the same instance.
func (in *Instance) MarkInit() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.initDone {
		return false
	}
	in.initDone = true
	return true
}

// MarkReady flips the one-shot ready flag, mirroring MarkInit.
func (in *Instance) MarkReady() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.readyDone {
		return false
	}
	in.readyDone = true
	return true
}
