// Package canonical serializes workflow values to RFC 8785 style canonical JSON
// and derives domain-separated digests from them.
//
// Values flowing through a workflow are opaque to the engine. The store and the
// scenario harness still need a deterministic byte form to persist and compare
// them, so this package accepts the shapes values take in practice:
//
//   - nil, bool, string, all integer kinds, finite floats
//   - slices and arrays of the above
//   - maps keyed by strings
//
// Object keys are ordered by UTF-16 code units, strings are NFC normalized and
// HTML characters are never escaped. Anything else is rejected with an error.
package canonical
