// Package primitives declares the wire and in-memory types shared across
// the sidecar: commitment requests, signed constraints, delegations, and
// the account/template state that the execution validator projects.
//
// Field names and the digest algorithms are grounded on the upstream Rust
// bolt-sidecar's primitives module; the Go encodings below are idiomatic
// translations, not a line-for-line port.
package primitives

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Slot is a monotonically increasing beacon chain slot number.
type Slot uint64

// Epoch is a beacon chain epoch number.
type Epoch uint64

// SlotsPerEpoch is fixed at 32, matching mainnet Ethereum consensus.
const SlotsPerEpoch = 32

// StartSlot returns the first slot of this epoch.
func (e Epoch) StartSlot() Slot {
	return Slot(uint64(e) * SlotsPerEpoch)
}

// EpochAt returns the epoch containing the given slot.
func EpochAt(slot Slot) Epoch {
	return Epoch(uint64(slot) / SlotsPerEpoch)
}

// BLSPubkeyLength is the length of a compressed BLS12-381 public key.
const BLSPubkeyLength = 48

// BLSSignatureLength is the length of a compressed BLS12-381 signature.
const BLSSignatureLength = 96

// BLSPubkey is a compressed BLS12-381 public key, comparable so it can be
// used as a map key (e.g. in the delegatees map and the available-pubkeys
// set).
type BLSPubkey [BLSPubkeyLength]byte

// String renders the pubkey as a 0x-prefixed hex string.
func (k BLSPubkey) String() string {
	return fmt.Sprintf("0x%x", [BLSPubkeyLength]byte(k))
}

// BLSSignature is a compressed BLS12-381 signature.
type BLSSignature [BLSSignatureLength]byte

// ForkVersion is the 4-byte chain-identifying domain separator.
type ForkVersion [4]byte

// ProposerDuty assigns a validator to a slot for the current (or next)
// epoch, as fetched from the beacon API.
type ProposerDuty struct {
	Slot            Slot
	ValidatorIndex  uint64
	ValidatorPubkey BLSPubkey
}

// AccountState is the minimal per-address state needed to validate a
// commitment request: nonce, balance, and whether the address has code
// deployed (a contract can never be a commitment sender).
type AccountState struct {
	Nonce   uint64
	Balance *big.Int
	HasCode bool
}

// Clone returns a deep copy of the account state.
func (a AccountState) Clone() AccountState {
	bal := new(big.Int)
	if a.Balance != nil {
		bal.Set(a.Balance)
	}
	return AccountState{Nonce: a.Nonce, Balance: bal, HasCode: a.HasCode}
}

// FullTransaction wraps a decoded transaction envelope together with its
// recovered sender, once known. The sender is populated by the execution
// validator during signature recovery; it is intentionally absent from the
// zero value so that callers cannot accidentally trust an unrecovered
// sender.
type FullTransaction struct {
	Tx     *types.Transaction
	sender *common.Address
}

// NewFullTransaction wraps a decoded transaction with no recovered sender.
func NewFullTransaction(tx *types.Transaction) *FullTransaction {
	return &FullTransaction{Tx: tx}
}

// Sender returns the recovered sender address, if any.
func (f *FullTransaction) Sender() (common.Address, bool) {
	if f.sender == nil {
		return common.Address{}, false
	}
	return *f.sender, true
}

// SetSender records the recovered sender address.
func (f *FullTransaction) SetSender(addr common.Address) {
	f.sender = &addr
}

// BlobCount returns the number of blobs carried by this transaction, 0 for
// non-EIP-4844 transactions.
func (f *FullTransaction) BlobCount() int {
	return len(f.Tx.BlobHashes())
}

// CommitmentRequest is the Inclusion-variant commitment request described
// in the external-interfaces section: a target slot, a batch of raw
// transactions, and an ECDSA signature over their digest.
type CommitmentRequest struct {
	Slot      Slot
	Txs       []*FullTransaction
	Signature [65]byte // r || s || v, matching the 0x-prefixed ECDSA encoding on the wire
}

// Digest computes keccak256(slot_le_bytes || concat(tx_hashes)), the digest
// that both the requester and the sidecar operator sign over.
func (r *CommitmentRequest) Digest() [32]byte {
	buf := make([]byte, 8, 8+len(r.Txs)*32)
	binary.LittleEndian.PutUint64(buf, uint64(r.Slot))
	for _, tx := range r.Txs {
		h := tx.Tx.Hash()
		buf = append(buf, h[:]...)
	}
	return Keccak256(buf)
}

// RecoverSender recovers the ECDSA sender address that produced
// Signature over Digest(), the requester's authorization proof.
func (r *CommitmentRequest) RecoverSender() (common.Address, error) {
	return RecoverSender(r.Digest(), r.Signature)
}

// RecoverSender recovers the address whose key produced signature over
// digest. signature is r || s || v; v may be encoded as 0/1 or, matching
// the common 0x-prefixed wallet convention, as 27/28.
func RecoverSender(digest [32]byte, signature [65]byte) (common.Address, error) {
	sig := signature
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(digest[:], sig[:])
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// ConstraintsMessage is the signed payload of a single constraint: a
// pubkey, the target slot, and the raw transaction envelope being
// committed to.
type ConstraintsMessage struct {
	Pubkey  BLSPubkey
	Slot    Slot
	TxBytes []byte
}

// NewConstraintsMessage builds a ConstraintsMessage for one transaction.
func NewConstraintsMessage(pubkey BLSPubkey, slot Slot, tx *types.Transaction) (*ConstraintsMessage, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &ConstraintsMessage{Pubkey: pubkey, Slot: slot, TxBytes: raw}, nil
}

// SignedConstraints is a BLS-signed ConstraintsMessage, the unit forwarded
// to the constraints relay.
type SignedConstraints struct {
	Message   *ConstraintsMessage
	Signature BLSSignature
}

// DelegationMessage authorizes delegatee_pubkey to sign constraints on
// behalf of validator_pubkey.
type DelegationMessage struct {
	ValidatorPubkey BLSPubkey
	DelegateePubkey BLSPubkey
}

// Digest computes sha256(validator_pubkey || delegatee_pubkey), the digest
// signed by the validator when producing a delegation.
func (d DelegationMessage) Digest() [32]byte {
	return Sha256Concat(d.ValidatorPubkey[:], d.DelegateePubkey[:])
}

// SignedDelegation is a BLS-signed DelegationMessage, loaded from the
// delegations file at startup.
type SignedDelegation struct {
	Message   DelegationMessage
	Signature BLSSignature
}

// RevocationMessage is the structural counterpart of DelegationMessage: it
// withdraws a previously granted delegation, a natural extension of the
// delegation mechanism sharing the same digest shape.
type RevocationMessage struct {
	ValidatorPubkey BLSPubkey
	DelegateePubkey BLSPubkey
}

// Digest computes sha256(validator_pubkey || delegatee_pubkey), identical
// in shape to DelegationMessage's digest.
func (r RevocationMessage) Digest() [32]byte {
	return Sha256Concat(r.ValidatorPubkey[:], r.DelegateePubkey[:])
}

// SignedRevocation is a BLS-signed RevocationMessage.
type SignedRevocation struct {
	Message   RevocationMessage
	Signature BLSSignature
}

// FetchPayloadRequest asks the coordinator for the locally-built payload
// for a slot, replying on ResponseCh exactly once.
type FetchPayloadRequest struct {
	Slot       Slot
	ResponseCh chan<- *PayloadAndBid
}

// PayloadAndBid bundles a bid value and block hash with the encoded
// payload they describe; it is what the coordinator caches after a local build and what it
// returns to a payload-fetch request.
type PayloadAndBid struct {
	BidValue  *big.Int
	BlockHash common.Hash
	Payload   []byte // opaque encoded payload; block-assembly internals are out of scope 
}
