// Package consensus tracks the sidecar's view of beacon chain time: the
// current slot and epoch, the commitment deadline for the next slot, and
// the proposer duties for the validator indexes this sidecar serves.
//
// Grounded on original_source/bolt-sidecar/src/state/consensus.rs for
// semantics, and Prysm's beacon-chain/utils.SlotTicker /
// validator/client.runner for the Go event-loop idiom.
package consensus

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bolt-sidecar/sidecar/sidecar/primitives"
)

var log = logrus.WithField("prefix", "consensus")

// DutyFetcher fetches proposer duties for a given epoch from the beacon
// API. Implemented in production by cmd/sidecar's REST client; the beacon
// API client itself is out of scope per the sidecar's design.
type DutyFetcher interface {
	ProposerDuties(ctx context.Context, epoch primitives.Epoch) ([]primitives.ProposerDuty, error)
}

type epoch struct {
	value         primitives.Epoch
	startSlot     primitives.Slot
	proposerDuties []primitives.ProposerDuty
}

// State is the consensus state container for the sidecar. Per the sidecar's design,
// it is mutated only by the coordinator's single goroutine; no internal
// locking is used on that basis. validatorIndexes is read-only after
// construction so ValidateRequest can be called without synchronization
// even from a concurrent test harness.
type State struct {
	fetcher DutyFetcher

	epoch             epoch
	validatorIndexes  map[uint64]struct{}
	operatorAddresses map[uint64]common.Address

	latestSlot          primitives.Slot
	latestSlotTimestamp time.Time

	commitmentDeadline         *CommitmentDeadline
	commitmentDeadlineDuration time.Duration

	unsafeLookaheadEnabled bool

	// nowFn is overridable in tests to pin time.Now().
	nowFn func() time.Time
}

// New constructs a consensus State. commitmentDeadlineDuration is the
// per-chain constant (e.g. 8s into a 12s mainnet slot). operatorAddresses
// maps each authorized validator index to the ECDSA address its
// commitment requests must be signed by.
func New(fetcher DutyFetcher, validatorIndexes []uint64, operatorAddresses map[uint64]common.Address, commitmentDeadlineDuration time.Duration, unsafeLookahead bool) *State {
	idx := make(map[uint64]struct{}, len(validatorIndexes))
	for _, i := range validatorIndexes {
		idx[i] = struct{}{}
	}
	return &State{
		fetcher:                    fetcher,
		validatorIndexes:           idx,
		operatorAddresses:          operatorAddresses,
		commitmentDeadline:         NewCommitmentDeadline(0, commitmentDeadlineDuration),
		commitmentDeadlineDuration: commitmentDeadlineDuration,
		unsafeLookaheadEnabled:     unsafeLookahead,
		latestSlotTimestamp:        time.Now(),
		nowFn:                      time.Now,
	}
}

// CommitmentDeadline returns the currently armed deadline, whose Wait()
// channel the coordinator selects on.
func (s *State) CommitmentDeadline() *CommitmentDeadline {
	return s.commitmentDeadline
}

// LatestSlot returns the most recently observed slot.
func (s *State) LatestSlot() primitives.Slot {
	return s.latestSlot
}

// ValidateRequest checks a commitment request against the current
// consensus view, in the exact order the sidecar's design specifies:
//  1. slot is within [epoch.start, epoch.start + K*SLOTS_PER_EPOCH)
//  2. if slot == latestSlot+1, now must be before the commitment deadline
//     (the deadline instant itself is rejected)
//  3. a proposer duty for this slot must name one of our validator indexes
//  4. the request's ECDSA signature must recover to that validator's
//     authorized operator address
//
// On success it returns that validator's BLS pubkey.
func (s *State) ValidateRequest(req *primitives.CommitmentRequest) (primitives.BLSPubkey, error) {
	k := primitives.Slot(primitives.SlotsPerEpoch)
	if s.unsafeLookaheadEnabled {
		k *= 2
	}
	furthestSlot := s.epoch.startSlot + k

	if req.Slot < s.epoch.startSlot || req.Slot >= furthestSlot {
		return primitives.BLSPubkey{}, ErrInvalidSlot(req.Slot)
	}

	if req.Slot == s.latestSlot+1 && !s.nowFn().Before(s.latestSlotTimestamp.Add(s.commitmentDeadlineDuration)) {
		return primitives.BLSPubkey{}, ErrDeadlineExceeded
	}

	pubkey, validatorIndex, err := s.findValidatorDutyForSlot(req.Slot)
	if err != nil {
		return primitives.BLSPubkey{}, err
	}

	sender, err := req.RecoverSender()
	if err != nil {
		return primitives.BLSPubkey{}, ErrInvalidSignature
	}
	if operator, ok := s.operatorAddresses[validatorIndex]; !ok || sender != operator {
		return primitives.BLSPubkey{}, ErrUnauthorizedSender
	}

	return pubkey, nil
}

func (s *State) findValidatorDutyForSlot(slot primitives.Slot) (primitives.BLSPubkey, uint64, error) {
	for _, duty := range s.epoch.proposerDuties {
		if duty.Slot != slot {
			continue
		}
		if _, ok := s.validatorIndexes[duty.ValidatorIndex]; ok {
			return duty.ValidatorPubkey, duty.ValidatorIndex, nil
		}
	}
	return primitives.BLSPubkey{}, 0, ErrValidatorNotFound
}

// UpdateSlot advances the consensus state to a newly observed slot: it
// resets the commitment deadline to fire commitmentDeadlineDuration into
// slot+1, records the observation timestamp, and refetches proposer
// duties on an epoch boundary (or if the current epoch's duties are
// still empty).
func (s *State) UpdateSlot(ctx context.Context, slot primitives.Slot) error {
	log.WithField("slot", slot).Debug("Updating slot")

	s.commitmentDeadline.Stop()
	s.commitmentDeadline = NewCommitmentDeadline(slot+1, s.commitmentDeadlineDuration)

	s.latestSlotTimestamp = s.nowFn()
	s.latestSlot = slot

	newEpoch := primitives.EpochAt(slot)

	if newEpoch != s.epoch.value {
		log.WithField("epoch", newEpoch).Debug("Updating epoch")
		s.epoch.value = newEpoch
		s.epoch.startSlot = newEpoch.StartSlot()
		return s.fetchProposerDuties(ctx, newEpoch)
	}

	if len(s.epoch.proposerDuties) == 0 {
		log.WithField("epoch", newEpoch).Debug("No proposer duties cached for current epoch, fetching")
		return s.fetchProposerDuties(ctx, newEpoch)
	}

	return nil
}

// fetchProposerDuties fetches duties for epoch, and epoch+1 too if unsafe
// lookahead is enabled. The two fetches run concurrently, matching the
// original's tokio::join! of both beacon API calls.
func (s *State) fetchProposerDuties(ctx context.Context, e primitives.Epoch) error {
	if !s.unsafeLookaheadEnabled {
		duties, err := s.fetcher.ProposerDuties(ctx, e)
		if err != nil {
			return errors.Wrap(err, "fetch proposer duties")
		}
		s.epoch.proposerDuties = duties
		return nil
	}

	var (
		wg                 sync.WaitGroup
		duties, nextDuties []primitives.ProposerDuty
		err, nextErr       error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		duties, err = s.fetcher.ProposerDuties(ctx, e)
	}()
	go func() {
		defer wg.Done()
		nextDuties, nextErr = s.fetcher.ProposerDuties(ctx, e+1)
	}()
	wg.Wait()

	if err != nil {
		return errors.Wrap(err, "fetch proposer duties for current epoch")
	}
	if nextErr != nil {
		return errors.Wrap(nextErr, "fetch proposer duties for next epoch")
	}

	s.epoch.proposerDuties = append(duties, nextDuties...)
	return nil
}
