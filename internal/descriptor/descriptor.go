// Package descriptor defines the dependency descriptor: a tagged list
// embedded anywhere in configuration data that marks a value which must be
// resolved asynchronously before use. The tag vocabulary is closed; unknown
// tags are rejected at parse time.
package descriptor

import "fmt"

// Tag identifies which resolver handles a descriptor.
type Tag string

const (
	// TagLoad fetches an external resource through the loader.
	TagLoad Tag = "load"
	// TagComponent registers (or looks up) a component definition.
	TagComponent Tag = "component"
	// TagInstance builds a child instance; resolution is deferred to keep
	// instantiation breadth-first.
	TagInstance Tag = "instance"
	// TagProxy installs a stand-in that materializes the instance on demand.
	TagProxy Tag = "proxy"
	// TagStart builds a child instance and runs its lifecycle; deferred like
	// TagInstance.
	TagStart Tag = "start"
	// TagStore resolves a datastore handle for the given settings.
	TagStore Tag = "store"
	// TagGet reads a record from a datastore.
	TagGet Tag = "get"
	// TagSet upserts a record into a datastore.
	TagSet Tag = "set"
	// TagDel removes a record from a datastore.
	TagDel Tag = "del"
)

var known = map[Tag]struct{}{
	TagLoad:      {},
	TagComponent: {},
	TagInstance:  {},
	TagProxy:     {},
	TagStart:     {},
	TagStore:     {},
	TagGet:       {},
	TagSet:       {},
	TagDel:       {},
}

// UnknownTagError means a descriptor's first element is outside the fixed
// tag vocabulary.
type UnknownTagError struct {
	Tag string
}

func (e UnknownTagError) Error() string {
	return fmt.Sprintf("unknown dependency descriptor tag: %q", e.Tag)
}

// Descriptor is the parsed form of a tagged dependency list. Args holds the
// tag-specific positional arguments that followed the tag.
type Descriptor struct {
	Tag  Tag
	Args []any
}

// Deferred reports whether resolution of this descriptor must wait until
// every sibling at the current tree level has settled.
func (d *Descriptor) Deferred() bool {
	return d.Tag == TagInstance || d.Tag == TagStart
}

// Arg returns the i-th positional argument, or nil when absent.
func (d *Descriptor) Arg(i int) any {
	if i < 0 || i >= len(d.Args) {
		return nil
	}
	return d.Args[i]
}

// ArgMap returns the i-th positional argument as a map, or nil when it is
// absent or of another shape.
func (d *Descriptor) ArgMap(i int) map[string]any {
	m, _ := d.Arg(i).(map[string]any)
	return m
}

// ArgString returns the i-th positional argument as a string.
func (d *Descriptor) ArgString(i int) string {
	s, _ := d.Arg(i).(string)
	return s
}

// Parse converts a raw tagged list into a Descriptor. The first element must
// be a string naming a known tag; everything after it becomes Args. A list
// whose head is a string outside the vocabulary yields UnknownTagError.
func Parse(raw []any) (*Descriptor, error) {
	if len(raw) == 0 {
		return nil, UnknownTagError{Tag: ""}
	}
	head, ok := raw[0].(string)
	if !ok {
		return nil, UnknownTagError{Tag: fmt.Sprintf("%v", raw[0])}
	}
	tag := Tag(head)
	if _, ok := known[tag]; !ok {
		return nil, UnknownTagError{Tag: head}
	}
	return &Descriptor{Tag: tag, Args: raw[1:]}, nil
}

// Detect reports whether a value has descriptor shape: a non-empty list
// whose first element is a string from the tag vocabulary. Values of any
// other shape are ordinary configuration data.
func Detect(v any) (*Descriptor, bool) {
	raw, ok := v.([]any)
	if !ok || len(raw) == 0 {
		return nil, false
	}
	head, ok := raw[0].(string)
	if !ok {
		return nil, false
	}
	if _, ok := known[Tag(head)]; !ok {
		return nil, false
	}
	return &Descriptor{Tag: Tag(head), Args: raw[1:]}, true
}
