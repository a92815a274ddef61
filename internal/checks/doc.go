// Package checks provides health.Probe implementations for the
// dependencies a service typically cares about: databases, caches, gRPC
// peers, object storage, HTTP endpoints, raw TCP and process memory.
//
// Every check honours ctx and returns nil when the dependency looks usable.
// Register them on a health.Aggregator.
package checks
