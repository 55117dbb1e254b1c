// Package logging defines the minimal Logger interface consumed across
// ResearchMesh plus slog based implementations (SlogAdapter, MeshLogger) and a
// NoOpLogger default. Downstream packages depend only on the interface so any
// structured logger can be plugged in.
package logging
