// Package cmd implements the command-line interface of dDoc, the embedded
// JSON document store. Every command opens the store under --base-dir
// directly, there is no server process.
//
// The package is organized into several subpackages:
//
//   - document: Commands for document operations (get, put, delete, ls, mkdir, history, exists, perf)
//   - lock: Commands for locking (acquire, txn), holding the locks for a given time
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// All flags can also be set through environment variables with the prefix
// DDOC_ (e.g. DDOC_BASE_DIR, DDOC_LOCK_TIMEOUT) or in a .env / .env.local file.
//
// See ddoc -help for a list of all commands.
package cmd
