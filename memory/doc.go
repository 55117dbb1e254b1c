// Package memory contains concrete implementations of core.MemoryStore, the
// session-scoped shared memory every worker in a session reads and writes.
// Values are last-write-wins and carry write provenance (timestamp, writer
// worker id, session id); there is no versioning or locking.
package memory
