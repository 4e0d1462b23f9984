// Package common provides the configuration and logging infrastructure shared
// by all dDoc packages.
//
// Key Components:
//
//   - StoreConfig: Construction-time configuration of a document store (base
//     directory, cache sizing, lock timeout, versioning). Provides defaults,
//     validation and a human-readable String() used at startup.
//
//   - Logger: Custom logging implementation of Dragonboat's logger.ILogger
//     interface. Every package obtains its logger once with
//     logger.GetLogger("<name>") and InitLoggers configures the factory and
//     the levels of all dDoc loggers in one place.
package common
