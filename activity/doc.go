// Package activity provides implementations of the core.ActivityStore
// interface for durable session activity logs.
package activity
