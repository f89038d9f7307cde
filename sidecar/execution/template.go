package execution

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bolt-sidecar/sidecar/sidecar/primitives"
)

// BlockTemplate is the per-slot accumulator of admitted constraints and
// their projected post-state, per the sidecar's design. It is owned exclusively by
// the execution State; the coordinator never mutates it directly.
type BlockTemplate struct {
	Slot primitives.Slot

	// SignedConstraintsList is the ordered, append-only sequence of
	// constraints admitted for this slot, in the order their API events
	// were dequeued (the sidecar's design ordering guarantee i).
	SignedConstraintsList []*primitives.SignedConstraints

	// CommittedTxs is the ordered sequence of admitted transactions, with
	// recovered senders attached.
	CommittedTxs []*primitives.FullTransaction

	// IntermediateState is the projected state of every referenced address
	// after folding CommittedTxs over the head snapshot.
	IntermediateState map[common.Address]primitives.AccountState

	GasUsed   uint64
	BlobCount int
}

// NewBlockTemplate constructs an empty template for slot.
func NewBlockTemplate(slot primitives.Slot) *BlockTemplate {
	return &BlockTemplate{
		Slot:              slot,
		IntermediateState: make(map[common.Address]primitives.AccountState),
	}
}

// IsEmpty reports whether the template has no committed transactions.
func (t *BlockTemplate) IsEmpty() bool {
	return len(t.CommittedTxs) == 0
}

// accountState returns the template's projected state for addr, falling
// back to headState if the address has not yet been touched in this
// template.
func (t *BlockTemplate) accountState(addr common.Address, headState primitives.AccountState) primitives.AccountState {
	if s, ok := t.IntermediateState[addr]; ok {
		return s
	}
	return headState
}

// committedIndexForNonce returns the index into CommittedTxs of the tx from
// sender at the given nonce, if one is already committed.
func (t *BlockTemplate) committedIndexForNonce(sender common.Address, nonce uint64) (int, bool) {
	for i, tx := range t.CommittedTxs {
		s, ok := tx.Sender()
		if !ok || s != sender {
			continue
		}
		if tx.Tx.Nonce() == nonce {
			return i, true
		}
	}
	return -1, false
}

// applyTx folds tx into the template's intermediate state and accounting,
// assuming it has already been validated as admissible. headState is the
// account state used to seed the sender's projection if this is the first tx
// from that sender in the template.
func (t *BlockTemplate) applyTx(tx *primitives.FullTransaction, headState primitives.AccountState) {
	sender, _ := tx.Sender()
	prev := t.accountState(sender, headState)

	cost := transactionCost(tx)
	newBalance := new(big.Int).Sub(prev.Balance, cost)

	t.IntermediateState[sender] = primitives.AccountState{
		Nonce:   prev.Nonce + 1,
		Balance: newBalance,
		HasCode: prev.HasCode,
	}

	t.GasUsed += tx.Tx.Gas()
	t.BlobCount += tx.BlobCount()
}

// replaceTx swaps out the committed tx at index i for replacement,
// recomputing gas/blob accounting and leaving the sender's nonce
// projection unchanged (the replacement consumes the same nonce slot).
func (t *BlockTemplate) replaceTx(i int, replacement *primitives.FullTransaction, headState primitives.AccountState) {
	old := t.CommittedTxs[i]
	t.GasUsed -= old.Tx.Gas()
	t.BlobCount -= old.BlobCount()

	t.CommittedTxs[i] = replacement

	sender, _ := replacement.Sender()
	prev := t.accountState(sender, headState)
	cost := transactionCost(replacement)
	// The nonce was already bumped when the original was applied; only the
	// balance projection and accumulators change on replacement.
	t.IntermediateState[sender] = primitives.AccountState{
		Nonce:   prev.Nonce,
		Balance: new(big.Int).Sub(addBack(prev.Balance, old), cost),
		HasCode: prev.HasCode,
	}

	t.GasUsed += replacement.Tx.Gas()
	t.BlobCount += replacement.BlobCount()
}

// addBack reverses the balance debit the old transaction applied, so the
// replacement can be debited from a clean base.
func addBack(balance *big.Int, old *primitives.FullTransaction) *big.Int {
	return new(big.Int).Add(balance, transactionCost(old))
}

// transactionCost is the maximum amount a transaction can debit from its
// sender's balance: value + gas_limit * max_fee_per_gas + blob_gas *
// blob_fee_cap, per the sidecar's design balance check.
func transactionCost(tx *primitives.FullTransaction) *big.Int {
	gasCost := new(big.Int).Mul(new(big.Int).SetUint64(tx.Tx.Gas()), tx.Tx.GasFeeCap())
	total := new(big.Int).Add(gasCost, tx.Tx.Value())
	if blobFeeCap := tx.Tx.BlobGasFeeCap(); blobFeeCap != nil {
		blobGas := new(big.Int).SetUint64(tx.Tx.BlobGas())
		total.Add(total, new(big.Int).Mul(blobGas, blobFeeCap))
	}
	return total
}
