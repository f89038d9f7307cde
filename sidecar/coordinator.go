// Package sidecar implements the preconfirmation sidecar's coordinator:
// the single-threaded event loop that owns the consensus and execution
// state and multiplexes the five asynchronous input streams.
//
// Grounded on original_source/driver.rs's SidecarDriver::run_forever and
// handle_incoming_api_event, and on Prysm's validator/client
// single-select-loop-over-channels idiom (validator/client/runner.go's
// `for { select { ... } }`).
package sidecar

import (
	"context"
	"crypto/ecdsa"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bolt-sidecar/sidecar/shared/metrics"
	"github.com/bolt-sidecar/sidecar/sidecar/builder"
	"github.com/bolt-sidecar/sidecar/sidecar/config"
	"github.com/bolt-sidecar/sidecar/sidecar/consensus"
	"github.com/bolt-sidecar/sidecar/sidecar/constraints"
	"github.com/bolt-sidecar/sidecar/sidecar/execution"
	"github.com/bolt-sidecar/sidecar/sidecar/primitives"
	"github.com/bolt-sidecar/sidecar/sidecar/signer"
)

var log = logrus.WithField("prefix", "coordinator")

// errNoSigningKeyAvailable is a SignerFailure per the sidecar's design taxonomy:
// pick_public_key found no usable key for this validator.
var errNoSigningKeyAvailable = errors.New("no signing key available for this validator")

// APIEvent is a commitment request dequeued from the HTTP ingress, paired
// with the channel its result is reported on.
type APIEvent struct {
	Request    *primitives.CommitmentRequest
	ResponseCh chan<- APIResponse
}

// APIResponse is the outcome of processing one APIEvent: either a signed
// acknowledgement or an error tagged with its taxonomy kind.
type APIResponse struct {
	Signature []byte
	Digest    [32]byte
	Err       error
	ErrKind   ErrorKind
}

// ErrorKind classifies a client-visible error per the sidecar's design taxonomy.
type ErrorKind int

const (
	ErrKindNone ErrorKind = iota
	ErrKindConsensusReject
	ErrKindExecutionReject
	ErrKindInternal
)

// HeadEvent signals a new execution-layer head at headSlot.
type HeadEvent struct {
	Slot primitives.Slot
}

// Coordinator owns the consensus and execution state exclusively and
// drives the event loop. No field is ever touched from outside Run's
// goroutine once started, except payloadCache, which is guarded by
// payloadCacheMu for the builder goroutines spawned by
// handleCommitmentDeadline.
type Coordinator struct {
	chain       config.ChainConfig
	consensus   *consensus.State
	execution   *execution.State
	signer      signer.ConstraintSigner
	constraints *constraints.Client
	builder     builder.LocalBuilder
	commitKey   *ecdsa.PrivateKey

	apiEventsCh    chan APIEvent
	headEventsCh   chan HeadEvent
	payloadFetchCh chan *primitives.FetchPayloadRequest
	slotTickCh     <-chan primitives.Slot

	payloadCacheMu sync.Mutex
	payloadCache   map[primitives.Slot]*primitives.PayloadAndBid
}

// New constructs a Coordinator. slotTicks is the consensus clock's output
// channel (see consensus.Clock); the remaining input channels are owned
// and sized by the Coordinator itself, per the sidecar's design (ingress 1024,
// payload fetch 16).
func New(
	chain config.ChainConfig,
	consensusState *consensus.State,
	executionState *execution.State,
	constraintSigner signer.ConstraintSigner,
	constraintsClient *constraints.Client,
	localBuilder builder.LocalBuilder,
	commitKey *ecdsa.PrivateKey,
	slotTicks <-chan primitives.Slot,
) *Coordinator {
	return &Coordinator{
		chain:          chain,
		consensus:      consensusState,
		execution:      executionState,
		signer:         constraintSigner,
		constraints:    constraintsClient,
		builder:        localBuilder,
		commitKey:      commitKey,
		apiEventsCh:    make(chan APIEvent, 1024),
		headEventsCh:   make(chan HeadEvent, 1024),
		payloadFetchCh: make(chan *primitives.FetchPayloadRequest, 16),
		slotTickCh:     slotTicks,
		payloadCache:   make(map[primitives.Slot]*primitives.PayloadAndBid),
	}
}

// SubmitAPIEvent offers ev to the ingress queue without blocking, per
// the sidecar's design non-blocking-send backpressure policy. It reports
// whether the event was accepted.
func (c *Coordinator) SubmitAPIEvent(ev APIEvent) bool {
	select {
	case c.apiEventsCh <- ev:
		return true
	default:
		return false
	}
}

// SubmitHeadEvent offers a new head notification without blocking.
func (c *Coordinator) SubmitHeadEvent(ev HeadEvent) bool {
	select {
	case c.headEventsCh <- ev:
		return true
	default:
		return false
	}
}

// SubmitPayloadFetchRequest offers a payload-fetch request without blocking.
func (c *Coordinator) SubmitPayloadFetchRequest(req *primitives.FetchPayloadRequest) bool {
	select {
	case c.payloadFetchCh <- req:
		return true
	default:
		return false
	}
}

// Run drives the event loop until ctx is cancelled. Exactly one goroutine
// should ever call Run for a given Coordinator.
//
// The commitment-deadline case reads from c.consensus.CommitmentDeadline()
// directly rather than through a coordinator-owned channel: that call is
// re-evaluated on every iteration of the select, so it always observes
// whichever CommitmentDeadline UpdateSlot most recently armed, matching
// original_source/driver.rs's re-evaluated `select!` arm.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Info("Coordinator stopping")
			return
		case ev := <-c.apiEventsCh:
			c.handleAPIEvent(ctx, ev)
		case ev := <-c.headEventsCh:
			c.handleHeadEvent(ctx, ev)
		case slot := <-c.consensus.CommitmentDeadline().Wait():
			c.handleCommitmentDeadline(ctx, slot)
		case req := <-c.payloadFetchCh:
			c.handleFetchPayloadRequest(req)
		case slot, ok := <-c.slotTickCh:
			if !ok {
				continue
			}
			c.handleSlotTick(ctx, slot)
		}
	}
}

// handleAPIEvent implements the sidecar's design critical path, steps 1-6.
func (c *Coordinator) handleAPIEvent(ctx context.Context, ev APIEvent) {
	validatorPubkey, err := c.consensus.ValidateRequest(ev.Request)
	if err != nil {
		c.reply(ev.ResponseCh, APIResponse{Err: err, ErrKind: ErrKindConsensusReject})
		return
	}

	if err := c.execution.ValidateRequest(ctx, ev.Request); err != nil {
		c.reply(ev.ResponseCh, APIResponse{Err: err, ErrKind: ErrKindExecutionReject})
		return
	}

	available := make(map[primitives.BLSPubkey]struct{})
	for _, pk := range c.signer.AvailablePubkeys() {
		available[pk] = struct{}{}
	}
	delegatees := c.constraints.FindDelegatees(validatorPubkey)

	pubkey, ok := signer.PickPublicKey(validatorPubkey, available, delegatees)
	if !ok {
		c.reply(ev.ResponseCh, APIResponse{Err: errNoSigningKeyAvailable, ErrKind: ErrKindInternal})
		return
	}

	dst := c.chain.SigningDomain()
	for _, tx := range ev.Request.Txs {
		msg, err := primitives.NewConstraintsMessage(pubkey, ev.Request.Slot, tx.Tx)
		if err != nil {
			c.reply(ev.ResponseCh, APIResponse{Err: err, ErrKind: ErrKindInternal})
			return
		}
		digest, err := msg.HashTreeRoot()
		if err != nil {
			c.reply(ev.ResponseCh, APIResponse{Err: err, ErrKind: ErrKindInternal})
			return
		}

		sig, err := c.signer.Sign(ctx, pubkey, dst, digest[:])
		if err != nil {
			// Earlier constraints in this request that were already
			// appended to the template are not rolled back; see
			// design decision 1.
			c.reply(ev.ResponseCh, APIResponse{Err: err, ErrKind: ErrKindInternal})
			return
		}

		c.execution.AddConstraint(ev.Request.Slot, &primitives.SignedConstraints{Message: msg, Signature: sig})
	}

	digest := ev.Request.Digest()
	commitSig, err := crypto.Sign(digest[:], c.commitKey)
	if err != nil {
		c.reply(ev.ResponseCh, APIResponse{Err: err, ErrKind: ErrKindInternal})
		return
	}

	c.reply(ev.ResponseCh, APIResponse{Signature: commitSig, Digest: digest})
}

func (c *Coordinator) reply(ch chan<- APIResponse, resp APIResponse) {
	select {
	case ch <- resp:
	default:
		log.Warn("API response channel was not ready; dropping response")
	}
}

// handleHeadEvent implements the documented behavior for "Processing a head event".
func (c *Coordinator) handleHeadEvent(ctx context.Context, ev HeadEvent) {
	if err := c.execution.UpdateHead(ctx, ev.Slot); err != nil {
		log.WithError(err).WithField("slot", ev.Slot).Error("Failed to refresh execution state on new head")
	}
}

// handleCommitmentDeadline implements the documented behavior for "Processing a
// commitment deadline for slot S".
func (c *Coordinator) handleCommitmentDeadline(ctx context.Context, slot primitives.Slot) {
	template := c.execution.GetBlockTemplate(slot)
	if template == nil {
		log.WithField("slot", slot).Debug("No block template at commitment deadline")
		return
	}

	go func() {
		payload, err := c.builder.BuildPayload(ctx, slot, template)
		if err != nil {
			log.WithError(err).WithField("slot", slot).Error("Local payload build failed")
			return
		}
		c.cachePayload(slot, payload)
	}()

	go c.constraints.SubmitConstraints(ctx, template.SignedConstraintsList)
}

// cachePayload is called from a spawned builder goroutine, the one piece
// of coordinator state touched off the event-loop goroutine, hence the
// dedicated mutex rather than the loop's usual lock-free ownership model.
func (c *Coordinator) cachePayload(slot primitives.Slot, payload *primitives.PayloadAndBid) {
	c.payloadCacheMu.Lock()
	defer c.payloadCacheMu.Unlock()
	c.payloadCache[slot] = payload
}

// handleFetchPayloadRequest implements the sidecar's design read-only payload lookup.
func (c *Coordinator) handleFetchPayloadRequest(req *primitives.FetchPayloadRequest) {
	c.payloadCacheMu.Lock()
	payload := c.payloadCache[req.Slot]
	c.payloadCacheMu.Unlock()

	select {
	case req.ResponseCh <- payload:
	default:
		log.WithField("slot", req.Slot).Warn("Payload fetch response channel was not ready; dropping response")
	}
}

// handleSlotTick implements the documented behavior for "Processing a slot tick".
// UpdateSlot itself re-arms the commitment deadline for the next slot, so
// there is nothing further to schedule here.
func (c *Coordinator) handleSlotTick(ctx context.Context, slot primitives.Slot) {
	if err := c.consensus.UpdateSlot(ctx, slot); err != nil {
		log.WithError(err).WithField("slot", slot).Error("Failed to update consensus state on slot tick")
		return
	}
	metrics.LatestHeadSlot.Set(float64(slot))
}
