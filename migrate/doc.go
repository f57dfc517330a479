// Package migrate moves records from a source into a size-bounded document
// store, pushing inline blobs to object storage on the way.
//
// A pass is sequential: one item is read, rewritten and written before the
// next starts, with a fixed throttle in between. Every item ends in a typed
// ItemResult; no failure stops the pass.
package migrate
