// Package worker implements the worker contract runtime: pluggable worker
// type definitions with contract validation, the Base lifecycle state machine
// (initialize, execute, pause, resume, cleanup), bounded dependency waiting on
// shared session memory, and the Context handed to worker hooks for progress
// reporting, memory, artifacts, delegation and model calls.
package worker
