// Package signer implements the constraint-signing capability the
// coordinator depends on: a local in-memory variant, a keystore-backed
// variant, and a remote-signer variant, unified behind one interface.
//
// Grounded on Prysm's validator/keymanager polymorphism (imported,
// derived, remote keymanager implementations behind a single
// validator/keymanager.IKeymanager interface) and shared/bls's
// SecretKey/PublicKey/Signature capability interfaces.
package signer

import (
	"context"
	"errors"

	"github.com/bolt-sidecar/sidecar/sidecar/primitives"
)

// ConstraintSigner is the capability set every signer variant implements:
// sign a digest under a given pubkey, and enumerate the pubkeys it can sign
// for. Named directly after the sidecar's design capability interface.
type ConstraintSigner interface {
	// Sign produces a signature over digest under pubkey, domain-separated
	// by dst (the configured chain's fork-version-derived BLS domain).
	Sign(ctx context.Context, pubkey primitives.BLSPubkey, dst []byte, digest []byte) (primitives.BLSSignature, error)

	// AvailablePubkeys returns every pubkey this signer can sign for.
	AvailablePubkeys() []primitives.BLSPubkey
}

// ErrPubkeyNotAvailable is returned when asked to sign under a pubkey the
// signer does not hold key material for.
var ErrPubkeyNotAvailable = errors.New("pubkey not available to this signer")

// PickPublicKey selects the signing key for a commitment: prefer a
// delegatee of validator that is available, falling back to validator
// itself if it has no delegatees and is available.
// delegatees is iterated in insertion order (the order the delegation file
// listed them), matching original_source/driver.rs's pick_public_key.
func PickPublicKey(validator primitives.BLSPubkey, available map[primitives.BLSPubkey]struct{}, delegatees []primitives.BLSPubkey) (primitives.BLSPubkey, bool) {
	if len(delegatees) == 0 {
		if _, ok := available[validator]; ok {
			return validator, true
		}
		return primitives.BLSPubkey{}, false
	}
	for _, d := range delegatees {
		if _, ok := available[d]; ok {
			return d, true
		}
	}
	return primitives.BLSPubkey{}, false
}
