// Package bus implements the session message bus: durable message rows,
// a process-local FIFO queue with a single non-overlapping drain pass, typed
// subscriptions per worker, and broadcast to every worker tracked under a
// session.
package bus
