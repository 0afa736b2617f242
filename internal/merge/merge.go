// Package merge implements the priority-data integration law used across
// the runtime: a priority object's fields overwrite a base object's fields,
// and fields carrying the Remove sentinel delete them. It also provides the
// subset-equality matcher used by datastore queries.
package merge

import "reflect"

// removed is the unexported type backing the Remove sentinel.
type removed struct{}

// Remove marks a field for deletion when used as a value in a priority map.
var Remove = removed{}

// Integrate merges the priority map into the data map and returns the result.
// Every key of priority either overwrites the corresponding key in data or,
// when its value is Remove, deletes it. Nested maps are merged recursively;
// any other value replaces the previous one wholesale.
//
// Integrate(nil, data) returns data unchanged and Integrate(priority, nil)
// returns priority unchanged, so a missing side never masks the other.
func Integrate(priority, data map[string]any) map[string]any {
	if priority == nil {
		return data
	}
	if data == nil {
		return priority
	}

	for key, val := range priority {
		if _, ok := val.(removed); ok {
			delete(data, key)
			continue
		}
		pm, pOK := val.(map[string]any)
		dm, dOK := data[key].(map[string]any)
		if pOK && dOK {
			data[key] = Integrate(pm, dm)
			continue
		}
		data[key] = val
	}
	return data
}

// Clone returns a deep copy of a configuration tree made of maps, slices and
// scalars. Values of other types are shared, not copied.
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Clone(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	default:
		return v
	}
}

// Matches reports whether candidate satisfies the query under the subset
// law: every field present in query must deep-equal the same field in
// candidate. Fields absent from the query are wildcards.
func Matches(query, candidate map[string]any) bool {
	for key, want := range query {
		got, ok := candidate[key]
		if !ok {
			return false
		}
		if !reflect.DeepEqual(want, got) {
			return false
		}
	}
	return true
}
