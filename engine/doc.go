// Package engine implements the session registry and scheduler: it owns
// session records and worker registrations, gates execution on declared
// dependencies, schedules worker execution without blocking callers, reduces
// many worker outcomes into one session status, and announces every lifecycle
// transition through a typed event broadcaster.
package engine
