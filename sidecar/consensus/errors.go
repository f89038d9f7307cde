package consensus

import (
	"fmt"

	"github.com/bolt-sidecar/sidecar/sidecar/primitives"
)

// Error is the consensus-reject taxonomy from the sidecar's design: invalid slot,
// deadline exceeded, validator not found. Every Error carries a Tag used
// for metrics and for the JSON-RPC -32001 "consensus-reject" response.
type Error struct {
	kind string
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Tag returns the taxonomy tag used for metrics and client-visible errors.
func (e *Error) Tag() string { return e.kind }

// ErrInvalidSlot is returned when a request's target slot falls outside
// the admissible window (current epoch, or current+next if unsafe
// lookahead is enabled).
func ErrInvalidSlot(slot primitives.Slot) error {
	return &Error{kind: "invalid_slot", msg: fmt.Sprintf("invalid slot: %d", slot)}
}

// ErrDeadlineExceeded is returned when a request for the immediate next
// slot arrives after that slot's commitment deadline.
var ErrDeadlineExceeded = &Error{kind: "deadline_exceeded", msg: "inclusion deadline exceeded"}

// ErrValidatorNotFound is returned when no proposer duty matches the
// requested slot among the sidecar's authorized validator indexes.
var ErrValidatorNotFound = &Error{kind: "validator_not_found", msg: "validator not found for slot"}

// ErrInvalidSignature is returned when a request's ECDSA signature does
// not recover to a valid public key.
var ErrInvalidSignature = &Error{kind: "invalid_signature", msg: "request signature does not recover"}

// ErrUnauthorizedSender is returned when a request's recovered sender
// address does not match the authorized operator address on file for the
// proposer duty's validator index.
var ErrUnauthorizedSender = &Error{kind: "unauthorized_sender", msg: "recovered sender is not an authorized operator for this validator"}
