package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBreaker_ClosedState(t *testing.T) {
	b := New(DefaultConfig())

	err := b.Execute(context.Background(), func() error { return nil })

	if err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("expected closed, got %v", b.State())
	}
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	b := New(Config{MaxFailures: 3, Timeout: time.Second})
	testErr := errors.New("boom")

	for i := 0; i < 3; i++ {
		b.Execute(context.Background(), func() error { return testErr })
	}

	if b.State() != StateOpen {
		t.Errorf("expected open, got %v", b.State())
	}
}

func TestBreaker_HalfOpenRecloses(t *testing.T) {
	b := New(Config{MaxFailures: 1, Timeout: 10 * time.Millisecond, HalfOpenMax: 2})

	b.Execute(context.Background(), func() error { return errors.New("fail") })
	time.Sleep(20 * time.Millisecond)

	for i := 0; i < 2; i++ {
		b.Execute(context.Background(), func() error { return nil })
	}

	if b.State() != StateClosed {
		t.Errorf("expected closed after successes, got %v", b.State())
	}
}

func TestBreaker_RejectsWhenOpen(t *testing.T) {
	b := New(Config{MaxFailures: 1, Timeout: time.Hour})

	b.Execute(context.Background(), func() error { return errors.New("fail") })
	err := b.Execute(context.Background(), func() error { return nil })

	if err != ErrCircuitOpen {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreaker_TimeoutGrowsOnRepeatedTrips(t *testing.T) {
	b := New(Config{
		MaxFailures:       1,
		Timeout:           10 * time.Millisecond,
		HalfOpenMax:       1,
		BackoffMultiplier: 2,
		MaxTimeout:        100 * time.Millisecond,
	})

	b.Execute(context.Background(), func() error { return errors.New("fail") })
	if got := b.currentTimeout; got != 10*time.Millisecond {
		t.Fatalf("expected initial timeout 10ms, got %v", got)
	}

	time.Sleep(15 * time.Millisecond)
	b.Execute(context.Background(), func() error { return errors.New("fail again") })
	if got := b.currentTimeout; got != 20*time.Millisecond {
		t.Fatalf("expected grown timeout 20ms, got %v", got)
	}
}

func TestRegistry_PerEndpointIsolation(t *testing.T) {
	r := NewRegistry(Config{MaxFailures: 1, Timeout: time.Hour})

	a := r.Endpoint("a", nil)
	bB := r.Endpoint("b", nil)

	a.Execute(context.Background(), func() error { return errors.New("fail") })

	if a.State() != StateOpen {
		t.Fatalf("expected a open, got %v", a.State())
	}
	if bB.State() != StateClosed {
		t.Fatalf("expected b unaffected, got %v", bB.State())
	}
}

func TestRegistry_GroupSharedAcrossEndpoints(t *testing.T) {
	r := NewRegistry(Config{MaxFailures: 1, Timeout: time.Hour})

	g1 := r.Group("shared")
	g2 := r.Group("shared")

	if g1 != g2 {
		t.Fatal("expected the same group breaker instance for the same name")
	}
	if r.Group("") != nil {
		t.Fatal("expected nil group breaker for empty name")
	}
}

func TestRegistry_EndpointOverrideConfig(t *testing.T) {
	r := NewRegistry(Config{MaxFailures: 5, Timeout: time.Hour})
	override := Config{MaxFailures: 1, Timeout: time.Hour}

	b := r.Endpoint("strict", &override)
	b.Execute(context.Background(), func() error { return errors.New("fail") })

	if b.State() != StateOpen {
		t.Fatalf("expected override to open after 1 failure, got %v", b.State())
	}
}
