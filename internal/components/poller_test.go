package components

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recordingTelemetry struct {
	mu     sync.Mutex
	points []int
}

func (r *recordingTelemetry) WriteComponentValue(_ string, _, value int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points = append(r.points, value)
}

func (r *recordingTelemetry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.points)
}

func TestPollerFiresOnChange(t *testing.T) {
	reg, driver := testRegistry(t)
	ctx := context.Background()

	if _, err := reg.Add(ctx, testComponent("Button", 26, DirectionIn)); err != nil {
		t.Fatalf("add: %v", err)
	}

	var mu sync.Mutex
	fired := 0
	telemetry := &recordingTelemetry{}
	poller := NewPoller(reg, time.Minute, func() {
		mu.Lock()
		fired++
		mu.Unlock()
	}, telemetry)

	// First sample establishes the baseline and fires once.
	poller.sample(ctx)
	mu.Lock()
	if fired != 1 {
		t.Fatalf("fired = %d after first sample, want 1", fired)
	}
	mu.Unlock()

	// No change, no callback.
	poller.sample(ctx)
	mu.Lock()
	if fired != 1 {
		t.Fatalf("fired = %d after unchanged sample, want 1", fired)
	}
	mu.Unlock()

	driver.SetInput(26, 1)
	poller.sample(ctx)
	mu.Lock()
	if fired != 2 {
		t.Fatalf("fired = %d after change, want 2", fired)
	}
	mu.Unlock()

	if telemetry.count() != 2 {
		t.Errorf("telemetry points = %d, want 2", telemetry.count())
	}
}

func TestPollerRunStopsOnCancel(t *testing.T) {
	reg, _ := testRegistry(t)

	poller := NewPoller(reg, 5*time.Millisecond, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop after context cancellation")
	}
}

func TestPollerNilTelemetryAndCallback(t *testing.T) {
	reg, driver := testRegistry(t)
	ctx := context.Background()

	if _, err := reg.Add(ctx, testComponent("Button", 26, DirectionIn)); err != nil {
		t.Fatalf("add: %v", err)
	}

	poller := NewPoller(reg, time.Minute, nil, nil)
	poller.sample(ctx)
	driver.SetInput(26, 1)
	poller.sample(ctx) // must not panic
}
