// Package builder defines the coordinator's local-payload-builder
// collaborator. Full block-assembly internals are out of scope here; this
// package provides the interface the coordinator calls against and a
// minimal fallback implementation that assembles a payload from a
// template's committed transactions, grounded on
// Prysm's powchain engine-API payload-building seam
// (powchain/engine_client.go's GetPayload/ForkchoiceUpdated shape,
// simplified to a single synchronous call).
package builder

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bolt-sidecar/sidecar/sidecar/execution"
	"github.com/bolt-sidecar/sidecar/sidecar/primitives"
)

// LocalBuilder builds a fallback execution payload for a slot, honoring
// the constraints already committed into that slot's block template.
type LocalBuilder interface {
	BuildPayload(ctx context.Context, slot primitives.Slot, template *execution.BlockTemplate) (*primitives.PayloadAndBid, error)
}

// FallbackBuilder is a minimal LocalBuilder that assembles a payload
// containing exactly the template's committed transactions, with a zero
// bid value. It exists so the coordinator has a concrete collaborator to
// drive the event loop and its tests against; a production builder would
// replace this with real execution-layer block assembly (engine_newPayload
// / engine_forkchoiceUpdated), which is out of scope here.
type FallbackBuilder struct{}

// NewFallbackBuilder constructs a FallbackBuilder.
func NewFallbackBuilder() *FallbackBuilder { return &FallbackBuilder{} }

// BuildPayload implements LocalBuilder.
func (b *FallbackBuilder) BuildPayload(_ context.Context, slot primitives.Slot, template *execution.BlockTemplate) (*primitives.PayloadAndBid, error) {
	encoded, err := encodeTemplate(template)
	if err != nil {
		return nil, err
	}
	return &primitives.PayloadAndBid{
		BidValue:  big.NewInt(0),
		BlockHash: common.Hash{},
		Payload:   encoded,
	}, nil
}

// encodeTemplate serializes the template's committed transaction set into
// an opaque payload blob. The wire format of a real execution payload is
// out of scope; this only needs to be deterministic given the same
// template, which is all the fallback builder's callers rely on.
func encodeTemplate(template *execution.BlockTemplate) ([]byte, error) {
	var out []byte
	for _, tx := range template.CommittedTxs {
		raw, err := tx.Tx.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out = append(out, raw...)
	}
	return out, nil
}
