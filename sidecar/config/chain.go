// Package config declares the sidecar's chain presets and CLI-driven
// options, following Prysm's shared/params package-level preset
// pattern (one struct literal per named network) together with
// shared/cmd-style urfave/cli flag declarations.
package config

import (
	"time"

	"github.com/pkg/errors"

	"github.com/bolt-sidecar/sidecar/sidecar/primitives"
)

// ChainConfig bundles the per-chain constants the sidecar needs: the fork
// version used as a BLS domain separator, and the slot/commitment timing.
type ChainConfig struct {
	Name               string
	ForkVersion        primitives.ForkVersion
	SlotDuration       time.Duration
	CommitmentDeadline time.Duration
}

// Named chain presets: fork versions, slot duration, and commitment
// deadline (default 8s into a 12s slot) are per-chain constants.
var (
	Mainnet = ChainConfig{
		Name:               "mainnet",
		ForkVersion:        primitives.ForkVersion{0x00, 0x00, 0x00, 0x00},
		SlotDuration:       12 * time.Second,
		CommitmentDeadline: 8 * time.Second,
	}
	Holesky = ChainConfig{
		Name:               "holesky",
		ForkVersion:        primitives.ForkVersion{0x01, 0x01, 0x70, 0x00},
		SlotDuration:       12 * time.Second,
		CommitmentDeadline: 8 * time.Second,
	}
	Helder = ChainConfig{
		Name:               "helder",
		ForkVersion:        primitives.ForkVersion{0x10, 0x00, 0x00, 0x00},
		SlotDuration:       12 * time.Second,
		CommitmentDeadline: 8 * time.Second,
	}
	Kurtosis = ChainConfig{
		Name:               "kurtosis",
		ForkVersion:        primitives.ForkVersion{0x10, 0x00, 0x00, 0x38},
		SlotDuration:       12 * time.Second,
		CommitmentDeadline: 8 * time.Second,
	}
)

var byName = map[string]ChainConfig{
	Mainnet.Name:  Mainnet,
	Holesky.Name:  Holesky,
	Helder.Name:   Helder,
	Kurtosis.Name: Kurtosis,
}

// ChainByName resolves a --chain flag value to its ChainConfig.
func ChainByName(name string) (ChainConfig, error) {
	c, ok := byName[name]
	if !ok {
		return ChainConfig{}, errors.Errorf("unknown chain %q", name)
	}
	return c, nil
}

// signingDomainPrefix namespaces every BLS domain separation tag this
// sidecar produces, so a signature cannot be replayed against an unrelated
// protocol that happens to share a fork version.
const signingDomainPrefix = "bolt-sidecar-constraints"

// SigningDomain returns the BLS domain separation tag every signer variant
// must sign under for this chain, per the sidecar's design "All variants MUST
// produce signatures valid under the configured chain's fork version as
// domain."
func (c ChainConfig) SigningDomain() []byte {
	return append([]byte(signingDomainPrefix), c.ForkVersion[:]...)
}
