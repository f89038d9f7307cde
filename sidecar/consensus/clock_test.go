package consensus

import (
	"testing"
	"time"

	"github.com/bolt-sidecar/sidecar/sidecar/primitives"
)

func TestClock_TicksFromGenesis(t *testing.T) {
	c := &Clock{c: make(chan primitives.Slot), done: make(chan struct{})}
	defer c.Stop()

	var sinceDuration time.Duration
	since := func(time.Time) time.Duration { return sinceDuration }

	var untilDuration time.Duration
	until := func(time.Time) time.Duration { return untilDuration }

	tick := make(chan time.Time, 2)
	after := func(time.Duration) <-chan time.Time { return tick }

	genesisTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	slotDuration := 12 * time.Second

	sinceDuration = 1 * time.Second
	untilDuration = 11 * time.Second
	c.start(genesisTime, slotDuration, since, until, after)

	tick <- time.Now()
	if slot := <-c.c; slot != 1 {
		t.Fatalf("expected slot 1, got %d", slot)
	}

	tick <- time.Now()
	if slot := <-c.c; slot != 2 {
		t.Fatalf("expected slot 2, got %d", slot)
	}
}

func TestClock_BeforeGenesisStartsAtZero(t *testing.T) {
	c := &Clock{c: make(chan primitives.Slot), done: make(chan struct{})}
	defer c.Stop()

	sinceDuration := -1 * time.Second
	since := func(time.Time) time.Duration { return sinceDuration }

	untilDuration := 1 * time.Second
	until := func(time.Time) time.Duration { return untilDuration }

	tick := make(chan time.Time, 2)
	after := func(time.Duration) <-chan time.Time { return tick }

	genesisTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.start(genesisTime, 12*time.Second, since, until, after)

	tick <- time.Now()
	if slot := <-c.c; slot != 0 {
		t.Fatalf("expected slot 0, got %d", slot)
	}

	tick <- time.Now()
	if slot := <-c.c; slot != 1 {
		t.Fatalf("expected slot 1, got %d", slot)
	}
}
