// Package util provides small, dependency-free data structures used by the
// dDoc libraries.
//
// The package contains:
//   - mapheap: A generic min priority queue that also supports key-based access.
//     The cache layer uses it as its expiry index, so the background sweep only
//     touches entries that actually expired.
package util
