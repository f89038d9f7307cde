// Package execution tracks per-account state and the per-slot block
// templates that commitment requests are validated and folded against.
//
// Grounded on original_source/bolt-sidecar/src/primitives/mod.rs (account
// state, full transaction) for the data model, and Prysm's
// beacon-chain/powchain/block_reader.go cache-then-fetch idiom for the
// account cache.
package execution

import (
	"context"
	"crypto/sha256"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto/kzg4844"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bolt-sidecar/sidecar/shared/metrics"
	"github.com/bolt-sidecar/sidecar/sidecar/primitives"
)

var log = logrus.WithField("prefix", "execution")

// StateFetcher is the execution-layer collaborator: fetching account
// state and the current head block number. The execution-chain RPC client
// itself is out of scope per the sidecar's design; this is the thin seam the
// coordinator's state depends on.
type StateFetcher interface {
	AccountState(ctx context.Context, addr common.Address) (primitives.AccountState, error)
	HeadBlockNumber(ctx context.Context) (uint64, error)
	ChainID() *big.Int
}

// State is the execution state container for the sidecar: the current
// head block number, the account cache, and the map of pending per-slot
// block templates. Per the sidecar's design, mutated only by the coordinator.
type State struct {
	fetcher StateFetcher
	cache   *AccountCache
	signer  types.Signer
	limits  Limits

	headBlockNumber uint64
	templates       map[primitives.Slot]*BlockTemplate
}

// New constructs an execution State and primes the head block number.
func New(ctx context.Context, fetcher StateFetcher, limits Limits) (*State, error) {
	head, err := fetcher.HeadBlockNumber(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch initial head block number")
	}
	return &State{
		fetcher:         fetcher,
		cache:           NewAccountCache(),
		signer:          types.LatestSignerForChainID(fetcher.ChainID()),
		limits:          limits,
		headBlockNumber: head,
		templates:       make(map[primitives.Slot]*BlockTemplate),
	}, nil
}

// GetBlockTemplate returns the template for slot if present and non-empty.
func (s *State) GetBlockTemplate(slot primitives.Slot) *BlockTemplate {
	t, ok := s.templates[slot]
	if !ok || t.IsEmpty() {
		return nil
	}
	return t
}

// headOrCachedAccountState returns the account state to seed a fresh
// template projection from: the cache if warm, otherwise a fetch from the
// execution layer (lazily loaded on first reference, per the sidecar's design).
func (s *State) headOrCachedAccountState(ctx context.Context, addr common.Address) (primitives.AccountState, error) {
	if cached, ok := s.cache.Get(addr); ok {
		return cached, nil
	}
	st, err := s.fetcher.AccountState(ctx, addr)
	if err != nil {
		return primitives.AccountState{}, errors.Wrapf(err, "fetch account state for %s", addr)
	}
	s.cache.Set(addr, st)
	return st, nil
}

// ValidateRequest enforces every admission rule against req's transactions
// and, on success, stages them into the slot's template. req is mutated in
// place to attach each transaction's recovered sender.
//
// Validation and admission proceed in two passes: first every transaction
// is checked against a scratch copy of the template's projected state, in
// request order, with each tx folded into the scratch copy once it passes,
// so later txs are checked against the state after the earlier ones and a
// tx is not checked on its own against the template as it stood before the
// request; only if all pass is the real template updated. If any tx fails, the whole request
// fails with no partial commit.
func (s *State) ValidateRequest(ctx context.Context, req *primitives.CommitmentRequest) error {
	template, ok := s.templates[req.Slot]
	if !ok {
		template = NewBlockTemplate(req.Slot)
	}

	scratch := cloneTemplate(template)

	type staged struct {
		tx         *primitives.FullTransaction
		replaceIdx int // -1 if this is not a replacement
	}
	var plan []staged

	for _, tx := range req.Txs {
		if err := s.validateOne(ctx, scratch, tx); err != nil {
			return err
		}

		sender, _ := tx.Sender()
		if idx, isReplacement := scratch.committedIndexForNonce(sender, tx.Tx.Nonce()); isReplacement {
			head, err := s.headOrCachedAccountState(ctx, sender)
			if err != nil {
				return err
			}
			scratch.replaceTx(idx, tx, head)
			plan = append(plan, staged{tx: tx, replaceIdx: idx})
		} else {
			head, err := s.headOrCachedAccountState(ctx, sender)
			if err != nil {
				return err
			}
			scratch.applyTx(tx, head)
			scratch.CommittedTxs = append(scratch.CommittedTxs, tx)
			plan = append(plan, staged{tx: tx, replaceIdx: -1})
		}
	}

	// All transactions passed; commit the scratch projection back.
	for _, p := range plan {
		sender, _ := p.tx.Sender()
		s.cache.Acquire(sender)
		if p.replaceIdx >= 0 {
			template.CommittedTxs[p.replaceIdx] = p.tx
		} else {
			template.CommittedTxs = append(template.CommittedTxs, p.tx)
		}
	}
	template.IntermediateState = scratch.IntermediateState
	template.GasUsed = scratch.GasUsed
	template.BlobCount = scratch.BlobCount
	s.templates[req.Slot] = template

	return nil
}

// validateOne checks a single transaction against scratch, recovering and
// attaching its sender as a side effect. It does not mutate scratch's
// accounting; the caller folds the tx into scratch right after it passes.
func (s *State) validateOne(ctx context.Context, scratch *BlockTemplate, tx *primitives.FullTransaction) error {
	if tx.Tx.ChainId().Cmp(s.signer.ChainID()) != 0 {
		return ErrChainIDMismatch
	}

	sender, err := types.Sender(s.signer, tx.Tx)
	if err != nil {
		return ErrInvalidSignature
	}
	tx.SetSender(sender)

	head, err := s.headOrCachedAccountState(ctx, sender)
	if err != nil {
		return err
	}
	if head.HasCode {
		return ErrAccountHasCode
	}

	projected := scratch.accountState(sender, head)

	// A nonce matching an already-committed transaction from this sender is
	// a replacement, not a gap or a stale nonce, regardless of where it
	// falls relative to the projected next nonce.
	if idx, isReplacement := scratch.committedIndexForNonce(sender, tx.Tx.Nonce()); isReplacement {
		if err := checkReplacement(scratch.CommittedTxs[idx], tx); err != nil {
			return err
		}
	} else {
		switch {
		case tx.Tx.Nonce() < projected.Nonce:
			return ErrNonceTooLow
		case tx.Tx.Nonce() > projected.Nonce:
			return ErrNonceGap
		}
	}

	if cost := transactionCost(tx); cost.Cmp(projected.Balance) > 0 {
		return ErrInsufficientBalance
	}

	if tx.Tx.Gas() > s.limits.MaxGasPerTransaction {
		return ErrGasLimitTooHigh
	}
	if scratch.GasUsed+tx.Tx.Gas() > s.limits.BlockGasLimit {
		return ErrBlockGasLimitExceeded
	}

	if tx.Tx.Type() == types.BlobTxType {
		if err := validateBlobSidecar(tx.Tx); err != nil {
			return err
		}
		if scratch.BlobCount+tx.BlobCount() > s.limits.MaxBlobsPerBlock {
			return ErrBlobLimitExceeded
		}
	}

	return nil
}

// checkReplacement enforces the minimum fee bump a replacement transaction
// must pay over the one it supersedes, per the sidecar's design "Replacement".
func checkReplacement(old, replacement *primitives.FullTransaction) error {
	oldFee := old.Tx.GasFeeCap()
	newFee := replacement.Tx.GasFeeCap()

	minRequired := new(big.Int).Mul(oldFee, big.NewInt(100+DefaultReplacementFeeBumpPercent))
	actual := new(big.Int).Mul(newFee, big.NewInt(100))

	if actual.Cmp(minRequired) < 0 {
		return ErrReplacementUnderpriced
	}
	return nil
}

// validateBlobSidecar checks that an EIP-4844 transaction carries a
// sidecar whose commitments match its versioned hashes. Block-assembly
// internals beyond this admission check are out of scope per the sidecar's design.
func validateBlobSidecar(tx *types.Transaction) error {
	sidecar := tx.BlobTxSidecar()
	if sidecar == nil {
		return ErrBlobSidecarMissing
	}
	hashes := tx.BlobHashes()
	if len(hashes) != len(sidecar.Commitments) {
		return ErrBlobCommitmentMismatch
	}
	for i, commitment := range sidecar.Commitments {
		computed := gethcrypto.CalcBlobHashV1(sha256.New(), &commitment)
		if computed != hashes[i] {
			return ErrBlobCommitmentMismatch
		}
	}
	return nil
}

// AddConstraint appends signedConstraints to the slot's template. The
// caller (coordinator) is expected to have already validated and applied
// the underlying transaction via ValidateRequest; this call records the
// signed, relay-bound artifact alongside it.
func (s *State) AddConstraint(slot primitives.Slot, signedConstraints *primitives.SignedConstraints) {
	template, ok := s.templates[slot]
	if !ok {
		template = NewBlockTemplate(slot)
		s.templates[slot] = template
	}
	template.SignedConstraintsList = append(template.SignedConstraintsList, signedConstraints)
}

// UpdateHead reconciles templates against a newly observed head. Every
// template strictly earlier than headSlot is discarded; every template at
// or after it has its referenced accounts refreshed from the new head
// snapshot and every committed transaction revalidated, evicting any that
// no longer passes (the commitment-already-issued hazard of reusing a nonce
// whose backing transaction no longer validates).
//
// Per design decision 3, the template at exactly headSlot is
// refreshed and revalidated like any later template, not discarded: only
// templates strictly before headSlot are dropped.
func (s *State) UpdateHead(ctx context.Context, headSlot primitives.Slot) error {
	head, err := s.fetcher.HeadBlockNumber(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch head block number")
	}
	s.headBlockNumber = head

	for slot, template := range s.templates {
		if slot < headSlot {
			s.releaseTemplateAccounts(template)
			delete(s.templates, slot)
			continue
		}
		if err := s.refreshAndRevalidate(ctx, template); err != nil {
			log.WithError(err).WithField("slot", slot).Error("Failed to revalidate template on head refresh")
		}
	}
	return nil
}

func (s *State) releaseTemplateAccounts(t *BlockTemplate) {
	for addr := range t.IntermediateState {
		s.cache.Release(addr)
	}
}

// refreshAndRevalidate refetches every address the template references
// from the new head and replays CommittedTxs against it, keeping only the
// ones that still pass. Evicted transactions are reported via the
// template_evictions metric; per the sidecar's design this is not surfaced to the
// client, since the commitment has already been returned.
func (s *State) refreshAndRevalidate(ctx context.Context, t *BlockTemplate) error {
	addrs := make(map[common.Address]struct{}, len(t.IntermediateState))
	for addr := range t.IntermediateState {
		addrs[addr] = struct{}{}
	}
	for _, tx := range t.CommittedTxs {
		if sender, ok := tx.Sender(); ok {
			addrs[sender] = struct{}{}
		}
	}

	headStates := make(map[common.Address]primitives.AccountState, len(addrs))
	for addr := range addrs {
		st, err := s.fetcher.AccountState(ctx, addr)
		if err != nil {
			return errors.Wrapf(err, "refresh account state for %s", addr)
		}
		s.cache.Set(addr, st)
		headStates[addr] = st
	}

	rebuilt := NewBlockTemplate(t.Slot)
	for _, tx := range t.CommittedTxs {
		sender, ok := tx.Sender()
		if !ok {
			continue
		}
		head := headStates[sender]
		projected := rebuilt.accountState(sender, head)

		if tx.Tx.Nonce() != projected.Nonce {
			evictTransaction(t, tx)
			continue
		}
		if cost := transactionCost(tx); cost.Cmp(projected.Balance) > 0 {
			evictTransaction(t, tx)
			continue
		}

		// Gas/blob caps were already enforced at admission time and can
		// only shrink the committed set here, never grow it, so they are
		// not re-checked on revalidation.
		rebuilt.CommittedTxs = append(rebuilt.CommittedTxs, tx)
		rebuilt.applyTx(tx, head)
	}

	t.CommittedTxs = rebuilt.CommittedTxs
	t.IntermediateState = rebuilt.IntermediateState
	t.GasUsed = rebuilt.GasUsed
	t.BlobCount = rebuilt.BlobCount

	return nil
}

func evictTransaction(t *BlockTemplate, tx *primitives.FullTransaction) {
	log.WithField("slot", t.Slot).WithField("txHash", tx.Tx.Hash()).Warn("Evicting committed transaction on head revalidation")
	metrics.TemplateEvictions.Inc()
}

func cloneTemplate(t *BlockTemplate) *BlockTemplate {
	clone := NewBlockTemplate(t.Slot)
	clone.CommittedTxs = append(clone.CommittedTxs, t.CommittedTxs...)
	for addr, st := range t.IntermediateState {
		clone.IntermediateState[addr] = st.Clone()
	}
	clone.GasUsed = t.GasUsed
	clone.BlobCount = t.BlobCount
	return clone
}
