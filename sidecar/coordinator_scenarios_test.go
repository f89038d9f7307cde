package sidecar

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	blscommon "github.com/bolt-sidecar/sidecar/shared/bls/common"
	"github.com/bolt-sidecar/sidecar/shared/bls/blst"
	"github.com/bolt-sidecar/sidecar/sidecar/builder"
	"github.com/bolt-sidecar/sidecar/sidecar/config"
	"github.com/bolt-sidecar/sidecar/sidecar/consensus"
	"github.com/bolt-sidecar/sidecar/sidecar/constraints"
	"github.com/bolt-sidecar/sidecar/sidecar/execution"
	"github.com/bolt-sidecar/sidecar/sidecar/primitives"
	"github.com/bolt-sidecar/sidecar/sidecar/signer"
)

// testChainID matches the chain ID scratch transactions are signed
// against; any value works since the harness's state fetcher reports it
// consistently to both the signer and the execution validator.
var testChainID = big.NewInt(17000)

type scenarioFetcher struct {
	duties map[primitives.Epoch][]primitives.ProposerDuty
}

func (f *scenarioFetcher) ProposerDuties(_ context.Context, e primitives.Epoch) ([]primitives.ProposerDuty, error) {
	return f.duties[e], nil
}

type scenarioStateFetcher struct {
	accounts map[common.Address]primitives.AccountState
	head     uint64
}

func (f *scenarioStateFetcher) AccountState(_ context.Context, addr common.Address) (primitives.AccountState, error) {
	if st, ok := f.accounts[addr]; ok {
		return st, nil
	}
	return primitives.AccountState{Balance: big.NewInt(0)}, nil
}
func (f *scenarioStateFetcher) HeadBlockNumber(context.Context) (uint64, error) { return f.head, nil }
func (f *scenarioStateFetcher) ChainID() *big.Int                               { return testChainID }

// harness wires a Coordinator with fakes in place of every external
// collaborator, following the same "fake the seams, exercise the real
// core" pattern Prysm's validator client tests use.
type harness struct {
	coordinator *Coordinator
	relayCalls  *int32
	relayStatus *int32
	validatorPK primitives.BLSPubkey
	delegateeSK blscommon.SecretKey
	stateFetch  *scenarioStateFetcher
	operatorKey *ecdsa.PrivateKey
}

func newHarness(t *testing.T, delegate bool) *harness {
	t.Helper()
	return newHarnessWithDeadline(t, delegate, config.Kurtosis.CommitmentDeadline)
}

func newHarnessWithDeadline(t *testing.T, delegate bool, commitmentDeadline time.Duration) *harness {
	t.Helper()

	chain := config.Kurtosis
	chain.CommitmentDeadline = commitmentDeadline

	validatorSK, err := blst.RandKey()
	require.NoError(t, err)
	var validatorPK primitives.BLSPubkey
	copy(validatorPK[:], validatorSK.PublicKey().Marshal())

	delegateeSK, err := blst.RandKey()
	require.NoError(t, err)
	var delegateePK primitives.BLSPubkey
	copy(delegateePK[:], delegateeSK.PublicKey().Marshal())

	fetcher := &scenarioFetcher{duties: map[primitives.Epoch][]primitives.ProposerDuty{
		0: {{Slot: 10, ValidatorIndex: 100, ValidatorPubkey: validatorPK}},
	}}
	operatorKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	operatorAddresses := map[uint64]common.Address{100: crypto.PubkeyToAddress(operatorKey.PublicKey)}
	consensusState := consensus.New(fetcher, []uint64{100}, operatorAddresses, chain.CommitmentDeadline, false)
	require.NoError(t, consensusState.UpdateSlot(context.Background(), 8))

	stateFetcher := &scenarioStateFetcher{accounts: make(map[common.Address]primitives.AccountState), head: 8}
	execState, err := execution.New(context.Background(), stateFetcher, execution.DefaultLimits)
	require.NoError(t, err)

	var localSigner *signer.Local
	if delegate {
		localSigner = signer.NewLocal([]blscommon.SecretKey{delegateeSK})
	} else {
		localSigner = signer.NewLocal([]blscommon.SecretKey{validatorSK})
	}

	var calls int32
	relayStatus := int32(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(int(atomic.LoadInt32(&relayStatus)))
	}))
	t.Cleanup(srv.Close)

	delegatees := map[primitives.BLSPubkey][]primitives.BLSPubkey{}
	if delegate {
		delegatees[validatorPK] = []primitives.BLSPubkey{delegateePK}
	}
	client := constraints.NewClient(srv.URL, delegatees)

	commitKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	slotTicks := make(chan primitives.Slot, 8)

	return &harness{
		coordinator: New(chain, consensusState, execState, localSigner, client, builder.NewFallbackBuilder(), commitKey, slotTicks),
		relayCalls:  &calls,
		relayStatus: &relayStatus,
		validatorPK: validatorPK,
		delegateeSK: delegateeSK,
		stateFetch:  stateFetcher,
		operatorKey: operatorKey,
	}
}

// signRequest computes req's digest and signs it with key, the operator
// authorization proof sidecar/consensus.State.ValidateRequest checks.
func signRequest(t *testing.T, key *ecdsa.PrivateKey, req *primitives.CommitmentRequest) {
	t.Helper()
	digest := req.Digest()
	sig, err := crypto.Sign(digest[:], key)
	require.NoError(t, err)
	copy(req.Signature[:], sig)
}

func fundedAccount(h *harness, addr common.Address, nonce uint64) {
	h.stateFetch.accounts[addr] = primitives.AccountState{Nonce: nonce, Balance: big.NewInt(1_000_000_000_000_000_000)}
}

func mustSignTx(t *testing.T, key *ecdsa.PrivateKey, nonce uint64, gasFeeCap int64, gas uint64) *primitives.FullTransaction {
	t.Helper()
	txData := &types.DynamicFeeTx{
		ChainID:   testChainID,
		Nonce:     nonce,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(gasFeeCap),
		Gas:       gas,
		To:        &common.Address{0xAA},
		Value:     big.NewInt(0),
	}
	tx := types.NewTx(txData)
	s := types.LatestSignerForChainID(testChainID)
	signed, err := types.SignTx(tx, s, key)
	require.NoError(t, err)
	return primitives.NewFullTransaction(signed)
}

func awaitResponse(t *testing.T, ch <-chan APIResponse) APIResponse {
	t.Helper()
	select {
	case resp := <-ch:
		return resp
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for API response")
		return APIResponse{}
	}
}

// TestScenario_HappyPath mirrors the sidecar's design scenario 1: a single
// well-formed request carrying one dynamic-fee tx for a duty slot this sidecar serves,
// submitted before the commitment deadline, is accepted and signed.
func TestScenario_HappyPath(t *testing.T) {
	h := newHarness(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.coordinator.Run(ctx)

	senderKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(senderKey.PublicKey)
	fundedAccount(h, addr, 5)

	tx := mustSignTx(t, senderKey, 5, 1_000_000_000, 21_000)
	req := &primitives.CommitmentRequest{Slot: 10, Txs: []*primitives.FullTransaction{tx}}
	signRequest(t, h.operatorKey, req)

	respCh := make(chan APIResponse, 1)
	require.True(t, h.coordinator.SubmitAPIEvent(APIEvent{Request: req, ResponseCh: respCh}))

	resp := awaitResponse(t, respCh)
	require.NoError(t, resp.Err)
	require.NotEmpty(t, resp.Signature)

	template := h.coordinator.execution.GetBlockTemplate(10)
	require.NotNil(t, template)
	require.Len(t, template.CommittedTxs, 1)
}

// TestScenario_DeadlineCrossedRejected mirrors scenario 2: a request for
// the very next slot, submitted after that slot's commitment deadline has
// elapsed, is rejected as a consensus-layer error before execution
// validation ever runs.
func TestScenario_DeadlineCrossedRejected(t *testing.T) {
	h := newHarnessWithDeadline(t, false, 30*time.Millisecond)
	require.NoError(t, h.coordinator.consensus.UpdateSlot(context.Background(), 9))
	time.Sleep(60 * time.Millisecond) // past slot 9's 30ms commitment deadline

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.coordinator.Run(ctx)

	senderKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(senderKey.PublicKey)
	fundedAccount(h, addr, 0)

	tx := mustSignTx(t, senderKey, 0, 1_000_000_000, 21_000)
	req := &primitives.CommitmentRequest{Slot: 10, Txs: []*primitives.FullTransaction{tx}}

	respCh := make(chan APIResponse, 1)
	require.True(t, h.coordinator.SubmitAPIEvent(APIEvent{Request: req, ResponseCh: respCh}))

	resp := awaitResponse(t, respCh)
	require.Error(t, resp.Err)
	require.Equal(t, ErrKindConsensusReject, resp.ErrKind)
}

// TestScenario_NonceGapRejected mirrors scenario 3: a request whose nonce
// does not match the sender's projected next nonce is rejected by the
// execution validator.
func TestScenario_NonceGapRejected(t *testing.T) {
	h := newHarness(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.coordinator.Run(ctx)

	senderKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(senderKey.PublicKey)
	fundedAccount(h, addr, 5)

	tx := mustSignTx(t, senderKey, 7, 1_000_000_000, 21_000) // gap: expected nonce 5
	req := &primitives.CommitmentRequest{Slot: 10, Txs: []*primitives.FullTransaction{tx}}
	signRequest(t, h.operatorKey, req)

	respCh := make(chan APIResponse, 1)
	require.True(t, h.coordinator.SubmitAPIEvent(APIEvent{Request: req, ResponseCh: respCh}))

	resp := awaitResponse(t, respCh)
	require.Error(t, resp.Err)
	require.Equal(t, ErrKindExecutionReject, resp.ErrKind)
}

// TestScenario_DelegationChosenOverValidatorKey mirrors scenario 4: when a
// delegatee key is registered and available, pick_public_key chooses it
// over the validator's own key; the harness signer holds only the
// delegatee key, so signing succeeds only if the delegatee is picked.
func TestScenario_DelegationChosenOverValidatorKey(t *testing.T) {
	h := newHarness(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.coordinator.Run(ctx)

	senderKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(senderKey.PublicKey)
	fundedAccount(h, addr, 0)

	tx := mustSignTx(t, senderKey, 0, 1_000_000_000, 21_000)
	req := &primitives.CommitmentRequest{Slot: 10, Txs: []*primitives.FullTransaction{tx}}
	signRequest(t, h.operatorKey, req)

	respCh := make(chan APIResponse, 1)
	require.True(t, h.coordinator.SubmitAPIEvent(APIEvent{Request: req, ResponseCh: respCh}))
	resp := awaitResponse(t, respCh)
	require.NoError(t, resp.Err)

	var delegateePK primitives.BLSPubkey
	copy(delegateePK[:], h.delegateeSK.PublicKey().Marshal())

	template := h.coordinator.execution.GetBlockTemplate(10)
	require.NotNil(t, template)
	require.Len(t, template.SignedConstraintsList, 1)
	require.Equal(t, delegateePK, template.SignedConstraintsList[0].Message.Pubkey)
}

// TestScenario_ReplacementRequiresMinimumBump mirrors scenario 5's exact
// fee values: a 100 wei fee-cap original, a 109 wei replacement (under
// the required 10% bump) rejected, then a 111 wei replacement accepted.
func TestScenario_ReplacementRequiresMinimumBump(t *testing.T) {
	h := newHarness(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.coordinator.Run(ctx)

	senderKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(senderKey.PublicKey)
	fundedAccount(h, addr, 0)

	original := mustSignTx(t, senderKey, 0, 100, 21_000)
	req1 := &primitives.CommitmentRequest{Slot: 10, Txs: []*primitives.FullTransaction{original}}
	signRequest(t, h.operatorKey, req1)
	resp1Ch := make(chan APIResponse, 1)
	require.True(t, h.coordinator.SubmitAPIEvent(APIEvent{Request: req1, ResponseCh: resp1Ch}))
	require.NoError(t, awaitResponse(t, resp1Ch).Err)

	underpriced := mustSignTx(t, senderKey, 0, 109, 21_000)
	req2 := &primitives.CommitmentRequest{Slot: 10, Txs: []*primitives.FullTransaction{underpriced}}
	signRequest(t, h.operatorKey, req2)
	resp2Ch := make(chan APIResponse, 1)
	require.True(t, h.coordinator.SubmitAPIEvent(APIEvent{Request: req2, ResponseCh: resp2Ch}))
	resp2 := awaitResponse(t, resp2Ch)
	require.Error(t, resp2.Err)
	require.Equal(t, ErrKindExecutionReject, resp2.ErrKind)

	sufficient := mustSignTx(t, senderKey, 0, 111, 21_000)
	req3 := &primitives.CommitmentRequest{Slot: 10, Txs: []*primitives.FullTransaction{sufficient}}
	signRequest(t, h.operatorKey, req3)
	resp3Ch := make(chan APIResponse, 1)
	require.True(t, h.coordinator.SubmitAPIEvent(APIEvent{Request: req3, ResponseCh: resp3Ch}))
	require.NoError(t, awaitResponse(t, resp3Ch).Err)

	template := h.coordinator.execution.GetBlockTemplate(10)
	require.NotNil(t, template)
	require.Len(t, template.CommittedTxs, 1)
	require.Equal(t, int64(111), template.CommittedTxs[0].Tx.GasFeeCap().Int64())
}

// flakySigner wraps a real signer but fails starting from the Nth call,
// used to pin the partial-signing-failure behavior below.
type flakySigner struct {
	signer.ConstraintSigner
	failFrom int32
	calls    int32
}

func (f *flakySigner) Sign(ctx context.Context, pubkey primitives.BLSPubkey, dst []byte, digest []byte) (primitives.BLSSignature, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n >= f.failFrom {
		return primitives.BLSSignature{}, errSigningFailed
	}
	return f.ConstraintSigner.Sign(ctx, pubkey, dst, digest)
}

var errSigningFailed = errors.New("signer unavailable")

// TestAPIEvent_PartialSignFailureDoesNotRollback pins the sidecar's design
// decision 1: when a signer failure strikes partway through a multi-tx
// request, constraints already appended to the template for earlier
// transactions in that same request stay in the template; only the whole
// request's response is an internal error.
func TestAPIEvent_PartialSignFailureDoesNotRollback(t *testing.T) {
	h := newHarness(t, false)
	flaky := &flakySigner{ConstraintSigner: h.coordinator.signer, failFrom: 2}
	h.coordinator.signer = flaky

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.coordinator.Run(ctx)

	senderKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(senderKey.PublicKey)
	fundedAccount(h, addr, 0)

	tx1 := mustSignTx(t, senderKey, 0, 1_000_000_000, 21_000)
	tx2 := mustSignTx(t, senderKey, 1, 1_000_000_000, 21_000)
	req := &primitives.CommitmentRequest{Slot: 10, Txs: []*primitives.FullTransaction{tx1, tx2}}
	signRequest(t, h.operatorKey, req)

	respCh := make(chan APIResponse, 1)
	require.True(t, h.coordinator.SubmitAPIEvent(APIEvent{Request: req, ResponseCh: respCh}))

	resp := awaitResponse(t, respCh)
	require.Error(t, resp.Err)
	require.Equal(t, ErrKindInternal, resp.ErrKind)

	template := h.coordinator.execution.GetBlockTemplate(10)
	require.NotNil(t, template)
	require.Len(t, template.SignedConstraintsList, 1, "the constraint signed before the failure must remain")
}

// TestHeadEvent_KeepsCurrentHeadSlotTemplate exercises the sidecar's design
// decision 3 through the coordinator's head-event path (the execution-state
// unit test already pins the underlying behavior directly; this confirms
// the coordinator's handleHeadEvent wiring doesn't discard it either).
func TestHeadEvent_KeepsCurrentHeadSlotTemplate(t *testing.T) {
	h := newHarness(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.coordinator.Run(ctx)

	senderKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(senderKey.PublicKey)
	fundedAccount(h, addr, 0)

	tx := mustSignTx(t, senderKey, 0, 1_000_000_000, 21_000)
	req := &primitives.CommitmentRequest{Slot: 10, Txs: []*primitives.FullTransaction{tx}}
	signRequest(t, h.operatorKey, req)
	respCh := make(chan APIResponse, 1)
	require.True(t, h.coordinator.SubmitAPIEvent(APIEvent{Request: req, ResponseCh: respCh}))
	require.NoError(t, awaitResponse(t, respCh).Err)

	require.True(t, h.coordinator.SubmitHeadEvent(HeadEvent{Slot: 10}))

	require.Eventually(t, func() bool {
		tmpl := h.coordinator.execution.GetBlockTemplate(10)
		return tmpl != nil && len(tmpl.CommittedTxs) == 1
	}, time.Second, 10*time.Millisecond, "template at the new head slot should be kept and revalidated, not discarded")
}

// TestScenario_RelayRetryExhaustion mirrors scenario 6: the constraints
// relay returns 5xx on every attempt, and the constraints client makes
// exactly five attempts in total before giving up.
func TestScenario_RelayRetryExhaustion(t *testing.T) {
	h := newHarness(t, false)
	atomic.StoreInt32(h.relayStatus, http.StatusBadGateway)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.coordinator.Run(ctx)

	senderKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(senderKey.PublicKey)
	fundedAccount(h, addr, 0)

	tx := mustSignTx(t, senderKey, 0, 1_000_000_000, 21_000)
	req := &primitives.CommitmentRequest{Slot: 10, Txs: []*primitives.FullTransaction{tx}}
	signRequest(t, h.operatorKey, req)

	respCh := make(chan APIResponse, 1)
	require.True(t, h.coordinator.SubmitAPIEvent(APIEvent{Request: req, ResponseCh: respCh}))
	require.NoError(t, awaitResponse(t, respCh).Err)

	h.coordinator.handleCommitmentDeadline(ctx, 10)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(h.relayCalls) == 5
	}, 2*time.Second, 50*time.Millisecond, "expected exactly 5 relay attempts")
}
