// Package core provides the foundational domain types and interfaces used by
// ResearchMesh. It defines the core abstractions for:
//
//   - Sessions (the unit of user-visible work owning workers, shared memory
//     and artifacts)
//   - Workers (autonomous units of work with a fixed lifecycle contract)
//   - Artifacts (durable, typed worker outputs)
//   - Messages (queued point-to-point or broadcast notifications)
//   - Typed lifecycle events and the Broadcaster that fans them out
//   - Pluggable stores for sessions, worker registrations, shared memory,
//     artifacts, messages and activity logs
//
// The package intentionally keeps implementation concerns (persistence,
// scheduling, concrete worker types) out of scope, exposing small interfaces
// to enable custom backends and extensions.
package core
