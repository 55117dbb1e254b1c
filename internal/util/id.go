package util

import "github.com/google/uuid"

// NewID generates a new opaque unique identifier used for sessions, workers,
// artifacts, messages and events.
func NewID() string { return uuid.NewString() }
