// Package datastore provides a uniform get/set/del abstraction over three
// backing tiers: an insertion-ordered in-memory cache, an embedded local
// bbolt database, and a remote server reached over HTTP or a multiplexed
// socket channel. The tier is fixed when a datastore is constructed, picked
// from its settings in priority order: url, then store, then local.
//
// Records are maps with one required "key" field. Values inside a fetched
// record may themselves be get-style dependency descriptors; they are
// resolved recursively before the record is returned, so callers never see
// an unresolved cross-reference.
//
// Structurally identical settings resolve to the same *Datastore through
// the Cache, so concurrent callers share one connection instead of racing
// to create duplicates.
package datastore
