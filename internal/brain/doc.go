// Package brain holds the typed record model: record types with inherited
// defaults and key derivation, collections that own records and a
// persistence engine each, and the Registry that ties collections, types
// and configuration together.
//
// A Registry is constructed explicitly and passed around; there is no
// package-level state. Records never embed other live records. Any record
// value placed into another record's data is rewritten to a doc.Reference,
// which Registry.Resolve turns back into the record.
package brain
