//go:build linux || darwin

// Package blst wraps github.com/supranational/blst/bindings/go in the
// shared/bls/common capability interfaces. Adapted from the BLS backend
// used by every Prysm signer; here the domain separation tag is supplied
// per-call rather than fixed at init time, since the sidecar signs under
// whichever chain's fork version it was configured with.
package blst

import (
	"crypto/rand"

	"github.com/pkg/errors"
	blst "github.com/supranational/blst/bindings/go"

	"github.com/bolt-sidecar/sidecar/shared/bls/common"
)

type blstPublicKey = blst.P1Affine
type blstSignature = blst.P2Affine

const scalarBytes = 32

// SecretKey is a BLS12-381 secret key backed by blst.
type SecretKey struct {
	p *blst.SecretKey
}

// PublicKey is a BLS12-381 public key backed by blst.
type PublicKey struct {
	p *blstPublicKey
}

// Signature is a BLS12-381 signature backed by blst.
type Signature struct {
	s *blstSignature
}

// RandKey generates a new random secret key.
func RandKey() (*SecretKey, error) {
	var ikm [scalarBytes]byte
	if _, err := rand.Read(ikm[:]); err != nil {
		return nil, errors.Wrap(err, "could not read randomness")
	}
	secKey := &SecretKey{p: blst.KeyGen(ikm[:])}
	if common.SecretKeyIsZero(secKey.Marshal()) {
		return nil, common.ErrZeroKey
	}
	return secKey, nil
}

// SecretKeyFromBytes unmarshals a BigEndian-encoded secret key.
func SecretKeyFromBytes(raw []byte) (*SecretKey, error) {
	if len(raw) != scalarBytes {
		return nil, errors.Errorf("secret key must be %d bytes, got %d", scalarBytes, len(raw))
	}
	if common.SecretKeyIsZero(raw) {
		return nil, common.ErrZeroKey
	}
	sk := new(blst.SecretKey).Deserialize(raw)
	if sk == nil {
		return nil, errors.New("could not deserialize secret key bytes")
	}
	return &SecretKey{p: sk}, nil
}

// PublicKey returns the public key corresponding to this secret key.
func (s *SecretKey) PublicKey() common.PublicKey {
	return &PublicKey{p: new(blstPublicKey).From(s.p)}
}

// Sign signs a 32-byte digest with the given domain separation tag.
//
// The domain separation tag is fixed per-chain (see sidecar/config), not
// baked into the key itself, because a single signer instance may be asked
// to sign for whichever chain it was configured with at startup.
func (s *SecretKey) Sign(digest []byte, dst []byte) common.Signature {
	sig := new(blstSignature).Sign(s.p, digest, dst)
	return &Signature{s: sig}
}

// Marshal serializes the secret key to its BigEndian byte representation.
func (s *SecretKey) Marshal() []byte {
	raw := s.p.Serialize()
	if len(raw) < scalarBytes {
		pad := make([]byte, scalarBytes-len(raw))
		raw = append(pad, raw...)
	}
	return raw
}

// Marshal serializes the public key to its compressed byte representation.
func (p *PublicKey) Marshal() []byte {
	return p.p.Compress()
}

// Equals reports whether two public keys are identical.
func (p *PublicKey) Equals(other common.PublicKey) bool {
	o, ok := other.(*PublicKey)
	if !ok {
		return false
	}
	return p.p.Equals(o.p)
}

// Marshal serializes the signature to its compressed byte representation.
func (s *Signature) Marshal() []byte {
	return s.s.Compress()
}

// Verify verifies the signature against a public key and digest under dst.
func (s *Signature) Verify(pub common.PublicKey, digest []byte, dst []byte) bool {
	p, ok := pub.(*PublicKey)
	if !ok {
		return false
	}
	return s.s.Verify(true, p.p, true, digest, dst)
}

// PublicKeyFromBytes decompresses a public key from its compressed form.
func PublicKeyFromBytes(raw []byte) (*PublicKey, error) {
	p := new(blstPublicKey).Uncompress(raw)
	if p == nil {
		return nil, errors.New("could not uncompress public key")
	}
	if !p.KeyValidate() {
		return nil, errors.New("public key failed group validation")
	}
	return &PublicKey{p: p}, nil
}

// SignatureFromBytes decompresses a signature from its compressed form.
func SignatureFromBytes(raw []byte) (*Signature, error) {
	s := new(blstSignature).Uncompress(raw)
	if s == nil {
		return nil, errors.New("could not uncompress signature")
	}
	return &Signature{s: s}, nil
}
