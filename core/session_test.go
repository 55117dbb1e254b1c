package core

import "testing"

func TestSession_Clone(t *testing.T) {
	s := NewSession("s1", "u1", "quantum error correction", map[string]any{"max_sources": 5})

	clone := s.Clone()
	if clone == s {
		t.Fatal("Clone should be a different pointer")
	}

	clone.Preferences["max_sources"] = 10
	if s.Preferences["max_sources"] != 5 {
		t.Error("original preferences should not see clone mutation")
	}
}

func TestSessionStatus_Terminal(t *testing.T) {
	terminal := []SessionStatus{SessionStatusCompleted, SessionStatusError, SessionStatusStopped}
	for _, st := range terminal {
		if !st.Terminal() {
			t.Errorf("%s should be terminal", st)
		}
	}

	open := []SessionStatus{SessionStatusCreated, SessionStatusRunning, SessionStatusPaused}
	for _, st := range open {
		if st.Terminal() {
			t.Errorf("%s should not be terminal", st)
		}
	}
}

func TestWorkerStatus_Finished(t *testing.T) {
	if !WorkerStatusCompleted.Finished() || !WorkerStatusError.Finished() {
		t.Error("completed and error should count as finished")
	}
	if WorkerStatusRunning.Finished() || WorkerStatusRegistered.Finished() || WorkerStatusPaused.Finished() {
		t.Error("non-terminal statuses should not count as finished")
	}
}
