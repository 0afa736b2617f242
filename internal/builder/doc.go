// Package builder implements the instance builder: given a component
// reference and configuration it produces a fully built, fully initialized
// instance tree, resolving every dependency descriptor reachable anywhere in
// the configuration graph.
//
// Resolution order is a contract, not an accident. Descriptors that load
// resources, components or records resolve eagerly and concurrently, but
// instance and start descriptors are deferred onto a FIFO queue: every
// dependency at the current tree level settles before any nested instance
// one level deeper is even started. Initialization then runs in two
// sequential phases over the completed tree, init hooks in discovery order
// and ready hooks in reverse, so owners initialize before their children
// and children become ready before their owners.
package builder
