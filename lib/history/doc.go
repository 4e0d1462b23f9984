// Package history implements document versioning for the store.
//
// Every document is stored inside a Document envelope that carries a random
// version id and the time of the last write. Before an existing document is
// overwritten, the Versioner copies its current bytes into a history
// directory next to it:
//
//	<dir>/_history/<name>_<previousVersion>_<unixNanoTimestamp>.json
//
// <name> is the document file name without extension. Documents whose version
// can not be read (e.g. files written by other tools) are snapshotted as
// "unversioned". After each snapshot the caller prunes the history of the
// document to the configured number of versions, deleting the oldest
// snapshots (by modification time) first. Deleting a document leaves its
// history in place.
//
// Snapshot and prune failures are reported to the caller, which by convention
// logs them and continues with the write: losing a history entry is
// preferable to losing the write.
package history
