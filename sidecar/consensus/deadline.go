package consensus

import (
	"time"

	"github.com/bolt-sidecar/sidecar/sidecar/primitives"
)

// CommitmentDeadline is a one-shot timer armed for a given slot. It fires
// at deadlineOffset into that slot, delivering the slot number on its
// channel exactly once. A newer deadline supersedes an older one: the
// caller is expected to discard the previous CommitmentDeadline (its timer
// is simply left to fire into a channel nobody reads, then garbage
// collected), matching original_source/driver.rs's "dropped if a newer
// slot supersedes them" note in the sidecar's design.
type CommitmentDeadline struct {
	slot  primitives.Slot
	c     chan primitives.Slot
	timer *time.Timer
}

// NewCommitmentDeadline arms a deadline for slot, firing after offset.
func NewCommitmentDeadline(slot primitives.Slot, offset time.Duration) *CommitmentDeadline {
	d := &CommitmentDeadline{
		slot: slot,
		c:    make(chan primitives.Slot, 1),
	}
	d.timer = time.AfterFunc(offset, func() {
		d.c <- slot
	})
	return d
}

// Wait returns the channel the slot is delivered on when the deadline fires.
func (d *CommitmentDeadline) Wait() <-chan primitives.Slot {
	return d.c
}

// Stop cancels the underlying timer, best-effort (a deadline already in
// flight may still fire once).
func (d *CommitmentDeadline) Stop() {
	d.timer.Stop()
}
