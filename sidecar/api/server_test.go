package api

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/bolt-sidecar/sidecar/sidecar"
)

var errDeadline = errors.New("commitment deadline has passed for this slot")

type fakeCoordinator struct {
	accept bool
	resp   sidecar.APIResponse
}

func (f *fakeCoordinator) SubmitAPIEvent(ev sidecar.APIEvent) bool {
	if !f.accept {
		return false
	}
	ev.ResponseCh <- f.resp
	return true
}

func rawLegacyTx(t *testing.T) string {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    0,
		GasPrice: big.NewInt(1_000_000_000),
		Gas:      21_000,
		To:       &common.Address{0xAA},
		Value:    big.NewInt(0),
	})
	signed, err := types.SignTx(tx, types.HomesteadSigner{}, key)
	require.NoError(t, err)
	raw, err := signed.MarshalBinary()
	require.NoError(t, err)
	return "0x" + hex.EncodeToString(raw)
}

func TestHandleRequest_HappyPathReturnsSignature(t *testing.T) {
	fake := &fakeCoordinator{accept: true, resp: sidecar.APIResponse{
		Signature: []byte{0x01, 0x02},
		Digest:    [32]byte{0x03, 0x04},
	}}
	server := NewServer(fake)

	body, err := json.Marshal(map[string]interface{}{
		"method": "bolt_requestInclusion",
		"params": map[string]interface{}{
			"slot":      10,
			"txs":       []string{rawLegacyTx(t)},
			"signature": "0x" + hex.EncodeToString(make([]byte, 65)),
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp jsonRPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Nil(t, resp.Error)
	require.Equal(t, "0x0102", resp.Result.Signature)
	require.Equal(t, "0x"+hex.EncodeToString(append([]byte{0x03, 0x04}, make([]byte, 30)...)), resp.Result.Digest)
}

func TestHandleRequest_ConsensusRejectMapsToCode(t *testing.T) {
	fake := &fakeCoordinator{accept: true, resp: sidecar.APIResponse{
		Err:     errDeadline,
		ErrKind: sidecar.ErrKindConsensusReject,
	}}
	server := NewServer(fake)

	body, err := json.Marshal(map[string]interface{}{
		"method": "bolt_requestInclusion",
		"params": map[string]interface{}{
			"slot":      10,
			"txs":       []string{rawLegacyTx(t)},
			"signature": "0x" + hex.EncodeToString(make([]byte, 65)),
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	var resp jsonRPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeConsensusReject, resp.Error.Code)
}

func TestHandleRequest_UnsupportedMethodRejected(t *testing.T) {
	fake := &fakeCoordinator{accept: true}
	server := NewServer(fake)

	body, err := json.Marshal(map[string]interface{}{"method": "eth_call"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	var resp jsonRPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInternal, resp.Error.Code)
}

func TestHandleRequest_QueueFullReturnsInternalError(t *testing.T) {
	fake := &fakeCoordinator{accept: false}
	server := NewServer(fake)

	body, err := json.Marshal(map[string]interface{}{
		"method": "bolt_requestInclusion",
		"params": map[string]interface{}{
			"slot":      10,
			"txs":       []string{rawLegacyTx(t)},
			"signature": "0x" + hex.EncodeToString(make([]byte, 65)),
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	var resp jsonRPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInternal, resp.Error.Code)
}
