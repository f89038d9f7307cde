package signer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bolt-sidecar/sidecar/shared/bls/blst"
	blscommon "github.com/bolt-sidecar/sidecar/shared/bls/common"
	"github.com/bolt-sidecar/sidecar/sidecar/primitives"
)

var testDST = []byte("BOLT_SIDECAR_TEST_DST")

func newLocalTestSigner(t *testing.T, n int) (*Local, []primitives.BLSPubkey) {
	t.Helper()
	secrets := make([]blscommon.SecretKey, 0, n)
	pubkeys := make([]primitives.BLSPubkey, 0, n)
	for i := 0; i < n; i++ {
		sk, err := blst.RandKey()
		require.NoError(t, err)
		secrets = append(secrets, sk)
		var pk primitives.BLSPubkey
		copy(pk[:], sk.PublicKey().Marshal())
		pubkeys = append(pubkeys, pk)
	}
	return NewLocal(secrets), pubkeys
}

func TestLocal_SignAndVerify(t *testing.T) {
	l, pubkeys := newLocalTestSigner(t, 1)
	digest := []byte("0123456789012345678901234567890x") // 32+ bytes, content irrelevant

	sig, err := l.Sign(context.Background(), pubkeys[0], testDST, digest[:32])
	require.NoError(t, err)

	verifySig, err := blst.SignatureFromBytes(sig[:])
	require.NoError(t, err)
	verifyPub, err := blst.PublicKeyFromBytes(pubkeys[0][:])
	require.NoError(t, err)
	assert.True(t, verifySig.Verify(verifyPub, digest[:32], testDST))
}

func TestLocal_SignUnknownPubkeyRejected(t *testing.T) {
	l, _ := newLocalTestSigner(t, 1)
	var unknown primitives.BLSPubkey
	unknown[0] = 0xFF

	_, err := l.Sign(context.Background(), unknown, testDST, make([]byte, 32))
	require.ErrorIs(t, err, ErrPubkeyNotAvailable)
}

func TestLocal_AvailablePubkeys(t *testing.T) {
	l, pubkeys := newLocalTestSigner(t, 3)
	got := l.AvailablePubkeys()
	require.Len(t, got, 3)

	want := make(map[primitives.BLSPubkey]struct{}, len(pubkeys))
	for _, pk := range pubkeys {
		want[pk] = struct{}{}
	}
	for _, pk := range got {
		_, ok := want[pk]
		assert.True(t, ok)
	}
}

func TestPickPublicKey_NoDelegateesReturnsValidatorIfAvailable(t *testing.T) {
	validator := pubkeyFromByte(1)
	available := map[primitives.BLSPubkey]struct{}{validator: {}}

	pk, ok := PickPublicKey(validator, available, nil)
	require.True(t, ok)
	assert.Equal(t, validator, pk)
}

func TestPickPublicKey_NoDelegateesAndValidatorUnavailable(t *testing.T) {
	validator := pubkeyFromByte(1)
	available := map[primitives.BLSPubkey]struct{}{pubkeyFromByte(2): {}}

	_, ok := PickPublicKey(validator, available, nil)
	assert.False(t, ok)
}

func TestPickPublicKey_PrefersFirstAvailableDelegateeInOrder(t *testing.T) {
	validator := pubkeyFromByte(1)
	d1, d2 := pubkeyFromByte(2), pubkeyFromByte(3)
	available := map[primitives.BLSPubkey]struct{}{d2: {}, validator: {}}

	pk, ok := PickPublicKey(validator, available, []primitives.BLSPubkey{d1, d2})
	require.True(t, ok)
	assert.Equal(t, d2, pk) // d1 listed first but unavailable; d2 is the first available

	pk, ok = PickPublicKey(validator, available, []primitives.BLSPubkey{d2, d1})
	require.True(t, ok)
	assert.Equal(t, d2, pk)
}

func TestPickPublicKey_NoAvailableDelegateeFails(t *testing.T) {
	validator := pubkeyFromByte(1)
	available := map[primitives.BLSPubkey]struct{}{validator: {}} // validator is available but has delegatees configured

	_, ok := PickPublicKey(validator, available, []primitives.BLSPubkey{pubkeyFromByte(2)})
	assert.False(t, ok)
}

func pubkeyFromByte(b byte) primitives.BLSPubkey {
	var k primitives.BLSPubkey
	k[0] = b
	return k
}
