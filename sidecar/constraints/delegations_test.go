package constraints

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bolt-sidecar/sidecar/shared/bls/blst"
	"github.com/bolt-sidecar/sidecar/sidecar/primitives"
)

var testDST = []byte("bolt-sidecar-constraints-test")

func signedDelegationRecord(t *testing.T, validatorSK *blst.SecretKey, delegatee primitives.BLSPubkey) delegationRecord {
	t.Helper()
	var validatorPk primitives.BLSPubkey
	copy(validatorPk[:], validatorSK.PublicKey().Marshal())

	msg := primitives.DelegationMessage{ValidatorPubkey: validatorPk, DelegateePubkey: delegatee}
	digest := msg.Digest()
	sig := validatorSK.Sign(digest[:], testDST)

	return delegationRecord{
		Message: struct {
			ValidatorPubkey string `json:"validator_pubkey"`
			DelegateePubkey string `json:"delegatee_pubkey"`
		}{
			ValidatorPubkey: validatorPk.String(),
			DelegateePubkey: delegatee.String(),
		},
		Signature: fmt.Sprintf("0x%x", sig.Marshal()),
	}
}

func writeDelegationsFile(t *testing.T, records []delegationRecord) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "delegations.json")
	raw, err := json.Marshal(records)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path
}

func TestLoadDelegations_PreservesFileOrder(t *testing.T) {
	validatorSK, err := blst.RandKey()
	require.NoError(t, err)

	var d1, d2 primitives.BLSPubkey
	d1[0], d2[0] = 0x02, 0x03

	path := writeDelegationsFile(t, []delegationRecord{
		signedDelegationRecord(t, validatorSK, d2),
		signedDelegationRecord(t, validatorSK, d1),
	})

	delegatees, err := LoadDelegations(path, testDST)
	require.NoError(t, err)

	var validatorPk primitives.BLSPubkey
	copy(validatorPk[:], validatorSK.PublicKey().Marshal())

	got := delegatees[validatorPk]
	require.Len(t, got, 2)
	assert.Equal(t, d2, got[0])
	assert.Equal(t, d1, got[1])
}

func TestLoadDelegations_RejectsForgedSignature(t *testing.T) {
	validatorSK, err := blst.RandKey()
	require.NoError(t, err)
	otherSK, err := blst.RandKey()
	require.NoError(t, err)

	var delegatee primitives.BLSPubkey
	delegatee[0] = 0x02

	rec := signedDelegationRecord(t, validatorSK, delegatee)
	// Tamper: swap in a signature produced by a different key.
	forged := signedDelegationRecord(t, otherSK, delegatee)
	rec.Signature = forged.Signature

	path := writeDelegationsFile(t, []delegationRecord{rec})

	_, err = LoadDelegations(path, testDST)
	require.Error(t, err)
}

func TestApplyRevocations_RemovesRevokedPair(t *testing.T) {
	var validator, d1, d2 primitives.BLSPubkey
	validator[0], d1[0], d2[0] = 0x01, 0x02, 0x03

	delegatees := map[primitives.BLSPubkey][]primitives.BLSPubkey{
		validator: {d1, d2},
	}
	revoked := map[primitives.BLSPubkey]map[primitives.BLSPubkey]struct{}{
		validator: {d1: {}},
	}

	ApplyRevocations(delegatees, revoked)

	require.Len(t, delegatees[validator], 1)
	assert.Equal(t, d2, delegatees[validator][0])
}
