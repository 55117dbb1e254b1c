package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestDependencyTimeoutError_NamesMissingKeys(t *testing.T) {
	err := &DependencyTimeoutError{
		WorkerID: "w1",
		Missing:  []string{"seed", "outline"},
		Timeout:  2 * time.Second,
	}

	msg := err.Error()
	if !strings.Contains(msg, "seed") || !strings.Contains(msg, "outline") {
		t.Fatalf("expected unmet keys in message, got %q", msg)
	}
}

func TestInitializationError_Unwrap(t *testing.T) {
	cause := errors.New("missing api key")
	err := &InitializationError{WorkerID: "w1", Err: cause}

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the cause")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"not found", &NotFoundError{Kind: "session", ID: "s1"}, ClassNotFound},
		{"wrapped not found", fmt.Errorf("ctx: %w", &NotFoundError{Kind: "worker", ID: "w1"}), ClassNotFound},
		{"invalid state", &InvalidStateError{SessionID: "s1", Status: SessionStatusRunning, Op: "restart"}, ClassInvalidState},
		{"not running", &NotRunningError{WorkerID: "w1", Status: WorkerStatusRegistered}, ClassInvalidState},
		{"contract", &ContractError{WorkerType: "echo", Missing: "performWork"}, ClassInvalidState},
		{"internal", errors.New("boom"), ClassInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
