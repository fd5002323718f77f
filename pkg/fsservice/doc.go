// Package fsservice is the outward virtual filesystem API. It composes
// the in-container content operations with the out-of-container
// metadata store: content lives in the user's container, while desktop
// positions and trash provenance survive container re-provisioning.
//
// Handler order is always validate, then content-side work, then
// metadata writes, so a failed content operation never leaves metadata
// behind. Missing metadata rows mean "no annotation" and are never an
// error.
package fsservice
