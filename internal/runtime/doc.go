// Package runtime assembles the component runtime: one resource loader, one
// component registry, one datastore cache and one instance builder, wired
// together so registered components carry bound create-instance operations.
package runtime
