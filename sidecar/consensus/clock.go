package consensus

import (
	"time"

	"github.com/bolt-sidecar/sidecar/sidecar/primitives"
)

// Clock is a genesis-time-anchored slot ticker, adapted from Prysm's
// beacon-chain/utils.SlotTicker: instead of a raw time.Ticker (which drifts
// and can coalesce missed ticks), it recomputes the wait until the next
// slot boundary on every iteration so ticks stay aligned to genesis time
// even if the process briefly stalls.
type Clock struct {
	c    chan primitives.Slot
	done chan struct{}
}

// C returns the channel slots are emitted on.
func (c *Clock) C() <-chan primitives.Slot {
	return c.c
}

// Stop releases the clock's goroutine. Safe to call once.
func (c *Clock) Stop() {
	close(c.done)
}

// NewClock starts a Clock ticking at slotDuration intervals from genesisTime.
func NewClock(genesisTime time.Time, slotDuration time.Duration) *Clock {
	c := &Clock{
		c:    make(chan primitives.Slot),
		done: make(chan struct{}),
	}
	c.start(genesisTime, slotDuration, time.Since, time.Until, time.After)
	return c
}

func (c *Clock) start(
	genesisTime time.Time,
	slotDuration time.Duration,
	since func(time.Time) time.Duration,
	until func(time.Time) time.Duration,
	after func(time.Duration) <-chan time.Time,
) {
	go func() {
		sinceGenesis := since(genesisTime)

		var nextTickTime time.Time
		var slot primitives.Slot
		if sinceGenesis < 0 {
			nextTickTime = genesisTime
			slot = 0
		} else {
			nextTick := sinceGenesis.Truncate(slotDuration) + slotDuration
			nextTickTime = genesisTime.Add(nextTick)
			slot = primitives.Slot(nextTick / slotDuration)
		}

		for {
			waitTime := until(nextTickTime)
			select {
			case <-after(waitTime):
				select {
				case c.c <- slot:
				case <-c.done:
					return
				}
				slot++
				nextTickTime = nextTickTime.Add(slotDuration)
			case <-c.done:
				return
			}
		}
	}()
}
