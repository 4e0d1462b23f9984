// Package serializer provides the document encoding used by the store and the
// history subsystem. It defines a common interface so the on-disk format of a
// document envelope is decided in one place.
//
// Key Components:
//
//   - ISerializer: Core interface that all serializer implementations must satisfy.
//
//   - jsonSerializerImpl: JSON encoding. The indented variant is the default
//     because documents are meant to be human-readable on disk; the compact
//     variant trades readability for smaller files.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
package serializer
