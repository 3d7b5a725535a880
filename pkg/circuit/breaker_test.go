package circuit

import (
	"context"
	"errors"
	"testing"
	"time"

	kfErrors "github.com/bardlex/kristforge/pkg/errors"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("State.String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestNew_DefaultConfig(t *testing.T) {
	cb := New(nil)

	if cb.config.MaxFailures != 5 {
		t.Errorf("Expected MaxFailures = 5, got %d", cb.config.MaxFailures)
	}

	if cb.config.SuccessRequired != 1 {
		t.Errorf("Expected SuccessRequired = 1, got %d", cb.config.SuccessRequired)
	}

	if cb.GetState() != StateClosed {
		t.Errorf("Expected initial state closed, got %v", cb.GetState())
	}
}

func TestExecute_Success(t *testing.T) {
	cb := New(DefaultConfig())

	err := cb.Execute(context.Background(), func() error {
		return nil
	})
	if err != nil {
		t.Errorf("Expected success, got %v", err)
	}

	if cb.GetState() != StateClosed {
		t.Errorf("Expected state closed after success, got %v", cb.GetState())
	}
}

func TestExecute_OpensAfterMaxFailures(t *testing.T) {
	cb := New(&Config{
		MaxFailures:     3,
		SuccessRequired: 1,
		Timeout:         time.Minute,
		ResetTimeout:    time.Minute,
	})

	failing := func() error { return errors.New("bootstrap refused") }

	for i := 0; i < 3; i++ {
		if err := cb.Execute(context.Background(), failing); err == nil {
			t.Fatal("Expected failure")
		}
	}

	if cb.GetState() != StateOpen {
		t.Errorf("Expected state open after %d failures, got %v", 3, cb.GetState())
	}

	// Requests are now rejected without running the function
	called := false
	err := cb.Execute(context.Background(), func() error {
		called = true
		return nil
	})
	if err == nil {
		t.Error("Expected rejection while open")
	}
	if called {
		t.Error("Function must not run while circuit is open")
	}
	if !kfErrors.IsType(err, kfErrors.ErrorTypeInternal) {
		t.Error("Expected internal error type for open circuit")
	}
}

func TestExecute_HalfOpenRecovery(t *testing.T) {
	cb := New(&Config{
		MaxFailures:     1,
		SuccessRequired: 1,
		Timeout:         10 * time.Millisecond,
		ResetTimeout:    time.Minute,
	})

	// Trip the breaker
	_ = cb.Execute(context.Background(), func() error { return errors.New("fail") })
	if cb.GetState() != StateOpen {
		t.Fatalf("Expected open, got %v", cb.GetState())
	}

	// Wait for half-open window
	time.Sleep(20 * time.Millisecond)

	if err := cb.Execute(context.Background(), func() error { return nil }); err != nil {
		t.Errorf("Expected half-open probe to run, got %v", err)
	}

	if cb.GetState() != StateClosed {
		t.Errorf("Expected closed after successful probe, got %v", cb.GetState())
	}
}

func TestExecute_HalfOpenFailureReopens(t *testing.T) {
	cb := New(&Config{
		MaxFailures:     1,
		SuccessRequired: 1,
		Timeout:         10 * time.Millisecond,
		ResetTimeout:    time.Minute,
	})

	_ = cb.Execute(context.Background(), func() error { return errors.New("fail") })
	time.Sleep(20 * time.Millisecond)

	// Probe fails; breaker must re-open
	_ = cb.Execute(context.Background(), func() error { return errors.New("still down") })

	if cb.GetState() != StateOpen {
		t.Errorf("Expected re-open after failed probe, got %v", cb.GetState())
	}
}

func TestExecuteWithResult(t *testing.T) {
	cb := New(DefaultConfig())

	url, err := ExecuteWithResult(context.Background(), cb, func() (string, error) {
		return "wss://krist.example/gateway", nil
	})
	if err != nil {
		t.Errorf("Expected success, got %v", err)
	}
	if url != "wss://krist.example/gateway" {
		t.Errorf("Unexpected result %q", url)
	}
}

func TestExecuteWithResult_Open(t *testing.T) {
	cb := New(&Config{
		MaxFailures:     1,
		SuccessRequired: 1,
		Timeout:         time.Minute,
		ResetTimeout:    time.Minute,
	})

	_ = cb.Execute(context.Background(), func() error { return errors.New("fail") })

	_, err := ExecuteWithResult(context.Background(), cb, func() (int, error) {
		return 42, nil
	})
	if err == nil {
		t.Error("Expected rejection while open")
	}
}

func TestReset(t *testing.T) {
	cb := New(&Config{
		MaxFailures:     1,
		SuccessRequired: 1,
		Timeout:         time.Minute,
		ResetTimeout:    time.Minute,
	})

	_ = cb.Execute(context.Background(), func() error { return errors.New("fail") })
	if cb.GetState() != StateOpen {
		t.Fatalf("Expected open, got %v", cb.GetState())
	}

	cb.Reset()

	if cb.GetState() != StateClosed {
		t.Errorf("Expected closed after reset, got %v", cb.GetState())
	}
}
