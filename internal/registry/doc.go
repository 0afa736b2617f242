// Package registry stores component definitions for a single runtime
// instance, keyed by their index (name, or name/version). Registration is
// idempotent: re-registering a present index returns the existing
// definition untouched, instance counter included.
//
// Definitions arrive three ways: as Go values, as loadable references
// resolved through the resource loader, or from HCL manifest files
// discovered on disk. Go-side lifecycle hooks are registered separately per
// index and attached when the definition lands.
package registry
