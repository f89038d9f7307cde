package signer

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"

	"github.com/bolt-sidecar/sidecar/sidecar/primitives"
)

// remoteRequestTimeout bounds every call to the remote signer, per
// the sidecar's design "remote: bounded" suspension point.
const remoteRequestTimeout = 2 * time.Second

// Remote is the remote-signer ConstraintSigner variant: signs over an
// authenticated HTTP channel, bounded by remoteRequestTimeout. Grounded on
// Prysm's validator/rpc JWT-bearer authentication pattern
// (validator/rpc/auth.go), adapted from RPC-session auth to a static
// bearer token suitable for a headless signer-to-signer call.
type Remote struct {
	baseURL    string
	token      string
	pubkeys    []primitives.BLSPubkey
	httpClient *http.Client
}

// NewRemote constructs a Remote signer for the signer service at baseURL,
// authenticated with token and advertising pubkeys as available. pubkeys
// is typically populated once at startup via a status call to the remote
// service; that discovery call is an external collaborator per the sidecar's design
// and is not implemented here.
func NewRemote(baseURL, token string, pubkeys []primitives.BLSPubkey) *Remote {
	return &Remote{
		baseURL:    baseURL,
		token:      token,
		pubkeys:    pubkeys,
		httpClient: &http.Client{Timeout: remoteRequestTimeout},
	}
}

type remoteSignRequest struct {
	Pubkey string `json:"pubkey"`
	Domain string `json:"domain"` // hex-encoded dst
	Digest string `json:"digest"` // hex-encoded digest
}

type remoteSignResponse struct {
	Signature string `json:"signature"`
}

// Sign implements ConstraintSigner.
func (r *Remote) Sign(ctx context.Context, pubkey primitives.BLSPubkey, dst []byte, digest []byte) (primitives.BLSSignature, error) {
	body, err := json.Marshal(remoteSignRequest{
		Pubkey: pubkey.String(),
		Domain: fmt.Sprintf("0x%x", dst),
		Digest: fmt.Sprintf("0x%x", digest),
	})
	if err != nil {
		return primitives.BLSSignature{}, errors.Wrap(err, "marshal remote sign request")
	}

	ctx, cancel := context.WithTimeout(ctx, remoteRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/sign", bytes.NewReader(body))
	if err != nil {
		return primitives.BLSSignature{}, errors.Wrap(err, "build remote sign request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.bearerToken())

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return primitives.BLSSignature{}, errors.Wrap(err, "remote signer request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return primitives.BLSSignature{}, errors.Errorf("remote signer returned status %d", resp.StatusCode)
	}

	var out remoteSignResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return primitives.BLSSignature{}, errors.Wrap(err, "decode remote sign response")
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(out.Signature, "0x"))
	if err != nil || len(raw) != primitives.BLSSignatureLength {
		return primitives.BLSSignature{}, errors.New("malformed signature in remote signer response")
	}
	var sig primitives.BLSSignature
	copy(sig[:], raw)
	return sig, nil
}

// AvailablePubkeys implements ConstraintSigner.
func (r *Remote) AvailablePubkeys() []primitives.BLSPubkey {
	return r.pubkeys
}

// bearerToken mints a short-lived JWT authenticating this sidecar instance
// to the remote signer, signed with the shared token as an HMAC secret.
func (r *Remote) bearerToken() string {
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(remoteRequestTimeout)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(r.token))
	if err != nil {
		// HS256 signing over a static secret cannot fail; this mirrors the
		// the same assumption Prysm's validator/rpc/auth.go makes.
		return r.token
	}
	return signed
}
