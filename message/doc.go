// Package message provides implementations of the core.MessageStore interface
// for persisting inter-worker messages.
package message
