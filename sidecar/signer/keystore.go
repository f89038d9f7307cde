package signer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	keystorev4 "github.com/wealdtech/go-eth2-wallet-encryptor-keystorev4"

	"github.com/bolt-sidecar/sidecar/shared/bls/blst"
	blscommon "github.com/bolt-sidecar/sidecar/shared/bls/common"
	"github.com/bolt-sidecar/sidecar/sidecar/primitives"
)

// keystoreFile is the on-disk EIP-2335 keystore shape, grounded on the
// Prysm's validator/keymanager.Keystore.
type keystoreFile struct {
	Crypto  map[string]interface{} `json:"crypto"`
	ID      string                 `json:"uuid"`
	Pubkey  string                 `json:"pubkey"`
	Version uint                   `json:"version"`
}

// Keystore is the EIP-2335 keystore-directory ConstraintSigner variant:
// every *.json file in a directory is decrypted once at startup with a
// shared password and cached in memory, then signs synchronously with no
// further disk I/O. Grounded on Prysm's
// validator/keymanager/imported.initializeAccountKeystore, adapted from a
// single combined keystore file to one file per key (the sidecar's
// delegation/keystore directory shape).
type Keystore struct {
	keys map[primitives.BLSPubkey]blscommon.SecretKey
}

// LoadKeystoreDir decrypts every keystore file in dir with password and
// returns a Keystore signer over the recovered keys.
func LoadKeystoreDir(dir, password string) (*Keystore, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read keystore directory %s", dir)
	}

	decryptor := keystorev4.New()
	keys := make(map[primitives.BLSPubkey]blscommon.SecretKey)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read keystore file %s", path)
		}

		var ks keystoreFile
		if err := json.Unmarshal(raw, &ks); err != nil {
			return nil, errors.Wrapf(err, "decode keystore file %s", path)
		}

		secretBytes, err := decryptor.Decrypt(ks.Crypto, password)
		if err != nil {
			if strings.Contains(err.Error(), "invalid checksum") {
				return nil, errors.Wrapf(err, "wrong password for keystore %s", path)
			}
			return nil, errors.Wrapf(err, "decrypt keystore %s", path)
		}

		sk, err := blst.SecretKeyFromBytes(secretBytes)
		if err != nil {
			return nil, errors.Wrapf(err, "parse secret key from keystore %s", path)
		}

		var pk primitives.BLSPubkey
		copy(pk[:], sk.PublicKey().Marshal())

		if ks.Pubkey != "" {
			want, err := hex.DecodeString(strings.TrimPrefix(ks.Pubkey, "0x"))
			if err == nil && !bytesEqual(want, pk[:]) {
				return nil, errors.Errorf("keystore %s: decrypted key does not match recorded pubkey", path)
			}
		}

		keys[pk] = sk
	}

	return &Keystore{keys: keys}, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Sign implements ConstraintSigner.
func (k *Keystore) Sign(_ context.Context, pubkey primitives.BLSPubkey, dst []byte, digest []byte) (primitives.BLSSignature, error) {
	sk, ok := k.keys[pubkey]
	if !ok {
		return primitives.BLSSignature{}, errors.Wrapf(ErrPubkeyNotAvailable, "pubkey %s", pubkey)
	}
	sig := sk.Sign(digest, dst)
	var out primitives.BLSSignature
	copy(out[:], sig.Marshal())
	return out, nil
}

// AvailablePubkeys implements ConstraintSigner.
func (k *Keystore) AvailablePubkeys() []primitives.BLSPubkey {
	keys := make([]primitives.BLSPubkey, 0, len(k.keys))
	for pk := range k.keys {
		keys = append(keys, pk)
	}
	return keys
}
