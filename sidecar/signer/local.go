package signer

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	blscommon "github.com/bolt-sidecar/sidecar/shared/bls/common"
	"github.com/bolt-sidecar/sidecar/sidecar/primitives"
)

// Local is the in-memory ConstraintSigner variant: secret keys supplied
// directly at startup (e.g. from a CLI flag or environment variable),
// signing synchronously with no I/O. Grounded on Prysm's
// validator/keymanager/imported in-process secretKeysCache pattern, here
// simplified since the sidecar process owns the keys for its own lifetime
// rather than persisting them to a wallet.
type Local struct {
	mu   sync.RWMutex
	keys map[primitives.BLSPubkey]blscommon.SecretKey
}

// NewLocal constructs a Local signer from a set of raw secret keys.
func NewLocal(secretKeys []blscommon.SecretKey) *Local {
	l := &Local{keys: make(map[primitives.BLSPubkey]blscommon.SecretKey, len(secretKeys))}
	for _, sk := range secretKeys {
		var pk primitives.BLSPubkey
		copy(pk[:], sk.PublicKey().Marshal())
		l.keys[pk] = sk
	}
	return l
}

// Sign implements ConstraintSigner.
func (l *Local) Sign(_ context.Context, pubkey primitives.BLSPubkey, dst []byte, digest []byte) (primitives.BLSSignature, error) {
	l.mu.RLock()
	sk, ok := l.keys[pubkey]
	l.mu.RUnlock()
	if !ok {
		return primitives.BLSSignature{}, errors.Wrapf(ErrPubkeyNotAvailable, "pubkey %s", pubkey)
	}

	sig := sk.Sign(digest, dst)
	var out primitives.BLSSignature
	copy(out[:], sig.Marshal())
	return out, nil
}

// AvailablePubkeys implements ConstraintSigner.
func (l *Local) AvailablePubkeys() []primitives.BLSPubkey {
	l.mu.RLock()
	defer l.mu.RUnlock()
	keys := make([]primitives.BLSPubkey, 0, len(l.keys))
	for pk := range l.keys {
		keys = append(keys, pk)
	}
	return keys
}
