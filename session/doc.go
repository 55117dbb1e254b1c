// Package session contains concrete implementations of core.SessionStore.
//
// The canonical SessionStore interface lives in the core package to avoid
// dependency cycles and keep domain contracts central. Implementation packages
// like this one (in-memory, Redis, databases, etc.) provide storage backends
// that can be swapped without touching calling code.
//
// Callers should depend on the core interface rather than concrete types so
// they can substitute alternative persistence layers in tests or production.
package session
