package config

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

// SigningMode selects which constraint signer variant buildSigner
// (in cmd/sidecar) constructs.
type SigningMode int

const (
	// SigningModeLocal signs with an in-memory BLS secret key.
	SigningModeLocal SigningMode = iota
	// SigningModeKeystore signs with an unlocked EIP-2335 keystore.
	SigningModeKeystore
	// SigningModeRemote signs over an authenticated remote channel.
	SigningModeRemote
)

// Options is the fully-parsed configuration for one sidecar process,
// assembled from CLI flags in cmd/sidecar/main.go.
type Options struct {
	Chain ChainConfig

	BeaconAPIURL      string
	ExecutionAPIURL   string
	ConstraintsAPIURL string

	CommitmentsPort      uint
	ConstraintsProxyPort uint

	CommitmentPrivateKeyHex string

	SigningMode SigningMode

	ConstraintPrivateKeyHex string

	KeystorePath        string
	KeystorePassword    string
	KeystoreSecretsPath string

	RemoteSignerURL string
	RemoteSignerJWT string

	ValidatorIndexes []uint64

	// OperatorAddresses maps a validator index to the ECDSA address that
	// validator's commitment requests must be signed by.
	OperatorAddresses map[uint64]common.Address

	DelegationsPath string
	RevocationsPath string

	UnsafeLookahead bool

	LogFormat string
	LogLevel  string
}

// FromCLIContext parses an Options struct out of a urfave/cli Context,
// mirroring Prysm's node.New(ctx *cli.Context) entrypoints that read
// every flag once at startup rather than threading *cli.Context through
// the rest of the program.
func FromCLIContext(ctx *cli.Context) (*Options, error) {
	chain, err := ChainByName(ctx.String(ChainFlag.Name))
	if err != nil {
		return nil, err
	}

	opts := &Options{
		Chain:                   chain,
		BeaconAPIURL:            ctx.String(BeaconAPIURLFlag.Name),
		ExecutionAPIURL:         ctx.String(ExecutionAPIURLFlag.Name),
		ConstraintsAPIURL:       ctx.String(ConstraintsAPIURLFlag.Name),
		CommitmentsPort:         ctx.Uint(CommitmentsPortFlag.Name),
		ConstraintsProxyPort:    ctx.Uint(ConstraintsProxyPortFlag.Name),
		CommitmentPrivateKeyHex: ctx.String(CommitmentPrivateKeyFlag.Name),
		ConstraintPrivateKeyHex: ctx.String(ConstraintPrivateKeyFlag.Name),
		KeystorePath:            ctx.String(KeystorePathFlag.Name),
		KeystorePassword:        ctx.String(KeystorePasswordFlag.Name),
		KeystoreSecretsPath:     ctx.String(KeystoreSecretsPathFlag.Name),
		RemoteSignerURL:         ctx.String(RemoteSignerURLFlag.Name),
		RemoteSignerJWT:         ctx.String(RemoteSignerJWTFlag.Name),
		DelegationsPath:         ctx.String(DelegationsPathFlag.Name),
		RevocationsPath:         ctx.String(RevocationsPathFlag.Name),
		UnsafeLookahead:         ctx.Bool(UnsafeLookaheadFlag.Name),
		LogFormat:               ctx.String(LogFormatFlag.Name),
		LogLevel:                ctx.String(LogLevelFlag.Name),
	}

	for _, raw := range ctx.StringSlice(ValidatorIndexesFlag.Name) {
		idx, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid validator index %q", raw)
		}
		opts.ValidatorIndexes = append(opts.ValidatorIndexes, idx)
	}

	opts.OperatorAddresses = make(map[uint64]common.Address)
	for _, raw := range ctx.StringSlice(OperatorAddressesFlag.Name) {
		parts := strings.SplitN(raw, ":", 2)
		if len(parts) != 2 {
			return nil, errors.Errorf("invalid operator address entry %q, expected validatorIndex:0xAddress", raw)
		}
		idx, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid operator address entry %q", raw)
		}
		if !common.IsHexAddress(parts[1]) {
			return nil, errors.Errorf("invalid operator address entry %q, %q is not a hex address", raw, parts[1])
		}
		opts.OperatorAddresses[idx] = common.HexToAddress(parts[1])
	}

	switch {
	case opts.ConstraintPrivateKeyHex != "":
		opts.SigningMode = SigningModeLocal
	case opts.KeystorePath != "":
		opts.SigningMode = SigningModeKeystore
	case opts.RemoteSignerURL != "":
		opts.SigningMode = SigningModeRemote
	default:
		return nil, errors.New("exactly one of constraint-private-key, keystore-path, or remote-signer-url must be set")
	}

	return opts, nil
}
