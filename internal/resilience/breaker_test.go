package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBackend = errors.New("backend unavailable")

func TestBreaker_ClosedPassesThrough(t *testing.T) {
	b := NewBreaker(3, time.Second)

	called := false
	if err := b.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("expected fn to be called")
	}
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b := NewBreaker(2, time.Second)

	_ = b.Execute(func() error { return errBackend })
	_ = b.Execute(func() error { return errBackend })

	err := b.Execute(func() error { t.Fatal("fn must not run while open"); return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreaker_ProbeAfterCooldown(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }

	_ = b.Execute(func() error { return errBackend })
	_ = b.Execute(func() error { return errBackend })

	now = now.Add(1500 * time.Millisecond)

	// Half-open probe succeeds and closes the circuit again.
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected probe to run, got %v", err)
	}
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected closed circuit, got %v", err)
	}
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }

	_ = b.Execute(func() error { return errBackend })
	_ = b.Execute(func() error { return errBackend })

	now = now.Add(2 * time.Second)
	_ = b.Execute(func() error { return errBackend })

	err := b.Execute(func() error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen after failed probe, got %v", err)
	}
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b := NewBreaker(3, time.Second)

	_ = b.Execute(func() error { return errBackend })
	_ = b.Execute(func() error { return errBackend })
	_ = b.Execute(func() error { return nil })
	_ = b.Execute(func() error { return errBackend })
	_ = b.Execute(func() error { return errBackend })

	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected closed circuit after reset, got %v", err)
	}
}
