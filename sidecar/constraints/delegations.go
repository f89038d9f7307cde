package constraints

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/bolt-sidecar/sidecar/shared/bls/blst"
	"github.com/bolt-sidecar/sidecar/sidecar/primitives"
)

func decodeHexPubkey(s string) (primitives.BLSPubkey, error) {
	var out primitives.BLSPubkey
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil || len(raw) != primitives.BLSPubkeyLength {
		return out, errors.New("malformed BLS pubkey")
	}
	copy(out[:], raw)
	return out, nil
}

func decodeHexSignature(s string) (primitives.BLSSignature, error) {
	var out primitives.BLSSignature
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil || len(raw) != primitives.BLSSignatureLength {
		return out, errors.New("malformed BLS signature")
	}
	copy(out[:], raw)
	return out, nil
}

// delegationRecord is the on-disk JSON shape of one entry in a delegations
// file, per the sidecar's design: `{message: {validator_pubkey, delegatee_pubkey},
// signature}`.
type delegationRecord struct {
	Message struct {
		ValidatorPubkey string `json:"validator_pubkey"`
		DelegateePubkey string `json:"delegatee_pubkey"`
	} `json:"message"`
	Signature string `json:"signature"`
}

// LoadDelegations reads a delegations file and returns the delegatee map
// it populates, in the file's insertion order per validator (the sidecar's design
// "preserve the file's order"). Every record's BLS signature is verified
// against the chain's fork-version domain before being admitted; a bad
// signature fails the whole load, since a forged delegation would let an
// unauthorized key sign constraints on a validator's behalf.
func LoadDelegations(path string, dst []byte) (map[primitives.BLSPubkey][]primitives.BLSPubkey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read delegations file %s", path)
	}

	var records []delegationRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, errors.Wrapf(err, "decode delegations file %s", path)
	}

	delegatees := make(map[primitives.BLSPubkey][]primitives.BLSPubkey)
	for i, rec := range records {
		validator, delegatee, err := decodeDelegationPair(rec.Message.ValidatorPubkey, rec.Message.DelegateePubkey)
		if err != nil {
			return nil, errors.Wrapf(err, "delegation record %d", i)
		}

		sig, err := decodeHexSignature(rec.Signature)
		if err != nil {
			return nil, errors.Wrapf(err, "delegation record %d: decode signature", i)
		}

		msg := primitives.DelegationMessage{ValidatorPubkey: validator, DelegateePubkey: delegatee}
		if err := verifyBLS(validator, sig, msg.Digest(), dst); err != nil {
			return nil, errors.Wrapf(err, "delegation record %d: signature verification failed", i)
		}

		delegatees[validator] = append(delegatees[validator], delegatee)
	}

	return delegatees, nil
}

// LoadRevocations reads a revocations file (the structural counterpart of
// a delegations file) and returns the set of (validator, delegatee) pairs
// that have been revoked. This is a supplement to the distilled
// specification's delegation coverage: see the sidecar's design.
func LoadRevocations(path string, dst []byte) (map[primitives.BLSPubkey]map[primitives.BLSPubkey]struct{}, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read revocations file %s", path)
	}

	var records []delegationRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, errors.Wrapf(err, "decode revocations file %s", path)
	}

	revoked := make(map[primitives.BLSPubkey]map[primitives.BLSPubkey]struct{})
	for i, rec := range records {
		validator, delegatee, err := decodeDelegationPair(rec.Message.ValidatorPubkey, rec.Message.DelegateePubkey)
		if err != nil {
			return nil, errors.Wrapf(err, "revocation record %d", i)
		}

		sig, err := decodeHexSignature(rec.Signature)
		if err != nil {
			return nil, errors.Wrapf(err, "revocation record %d: decode signature", i)
		}

		msg := primitives.RevocationMessage{ValidatorPubkey: validator, DelegateePubkey: delegatee}
		if err := verifyBLS(validator, sig, msg.Digest(), dst); err != nil {
			return nil, errors.Wrapf(err, "revocation record %d: signature verification failed", i)
		}

		if revoked[validator] == nil {
			revoked[validator] = make(map[primitives.BLSPubkey]struct{})
		}
		revoked[validator][delegatee] = struct{}{}
	}

	return revoked, nil
}

// ApplyRevocations removes every revoked (validator, delegatee) pair from
// delegatees, preserving the remaining entries' relative order.
func ApplyRevocations(delegatees map[primitives.BLSPubkey][]primitives.BLSPubkey, revoked map[primitives.BLSPubkey]map[primitives.BLSPubkey]struct{}) {
	for validator, list := range delegatees {
		revokedForValidator := revoked[validator]
		if len(revokedForValidator) == 0 {
			continue
		}
		filtered := list[:0]
		for _, d := range list {
			if _, isRevoked := revokedForValidator[d]; !isRevoked {
				filtered = append(filtered, d)
			}
		}
		delegatees[validator] = filtered
	}
}

func decodeDelegationPair(validatorHex, delegateeHex string) (validator, delegatee primitives.BLSPubkey, err error) {
	v, err := decodeHexPubkey(validatorHex)
	if err != nil {
		return validator, delegatee, errors.Wrap(err, "validator_pubkey")
	}
	d, err := decodeHexPubkey(delegateeHex)
	if err != nil {
		return validator, delegatee, errors.Wrap(err, "delegatee_pubkey")
	}
	return v, d, nil
}

func verifyBLS(pubkey primitives.BLSPubkey, sig primitives.BLSSignature, digest [32]byte, dst []byte) error {
	pub, err := blst.PublicKeyFromBytes(pubkey[:])
	if err != nil {
		return errors.Wrap(err, "invalid pubkey")
	}
	signature, err := blst.SignatureFromBytes(sig[:])
	if err != nil {
		return errors.Wrap(err, "invalid signature encoding")
	}
	if !signature.Verify(pub, digest[:], dst) {
		return errors.New("signature does not verify")
	}
	return nil
}
