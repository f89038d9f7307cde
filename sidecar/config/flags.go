package config

import (
	"github.com/urfave/cli/v2"
)

// CLI flags for the sidecar, one package-level var per flag, matching the
// Prysm's validator/flags and beacon-chain/flags convention.
var (
	ChainFlag = &cli.StringFlag{
		Name:  "chain",
		Usage: "Chain preset to run against: mainnet, holesky, helder, kurtosis",
		Value: "mainnet",
	}
	BeaconAPIURLFlag = &cli.StringFlag{
		Name:     "beacon-api-url",
		Usage:    "Beacon node API endpoint used for genesis time, proposer duties and head events",
		Required: true,
	}
	ExecutionAPIURLFlag = &cli.StringFlag{
		Name:     "execution-api-url",
		Usage:    "Execution node JSON-RPC endpoint used to fetch account state",
		Required: true,
	}
	ConstraintsAPIURLFlag = &cli.StringFlag{
		Name:     "constraints-api-url",
		Usage:    "Base URL of the constraints relay that signed constraints are submitted to",
		Required: true,
	}
	CommitmentsPortFlag = &cli.UintFlag{
		Name:  "commitments-port",
		Usage: "Listen port for the commitments ingress HTTP API",
		Value: 8000,
	}
	ConstraintsProxyPortFlag = &cli.UintFlag{
		Name:  "constraints-proxy-port",
		Usage: "Listen port for the builder-proxy HTTP API",
		Value: 18550,
	}
	CommitmentPrivateKeyFlag = &cli.StringFlag{
		Name:     "commitment-private-key",
		Usage:    "Hex-encoded ECDSA private key used to sign commitment acknowledgements",
		Required: true,
	}
	ConstraintPrivateKeyFlag = &cli.StringFlag{
		Name:  "constraint-private-key",
		Usage: "Hex-encoded BLS private key used to sign constraints (local signer variant)",
	}
	KeystorePathFlag = &cli.StringFlag{
		Name:  "keystore-path",
		Usage: "Path to an EIP-2335 keystore directory (keystore signer variant)",
	}
	KeystorePasswordFlag = &cli.StringFlag{
		Name:  "keystore-password",
		Usage: "Password for the keystore directory",
	}
	KeystoreSecretsPathFlag = &cli.StringFlag{
		Name:  "keystore-secrets-path",
		Usage: "Path to a directory of per-key password files; parsed but not read, keystores are unlocked with keystore-password only",
	}
	RemoteSignerURLFlag = &cli.StringFlag{
		Name:  "remote-signer-url",
		Usage: "URL of a remote (commit-boost style) signer (remote signer variant)",
	}
	RemoteSignerJWTFlag = &cli.StringFlag{
		Name:  "remote-signer-jwt",
		Usage: "JWT secret used to authenticate to the remote signer; the string's bytes are used as the HMAC key as given",
	}
	ValidatorIndexesFlag = &cli.StringSliceFlag{
		Name:     "validator-indexes",
		Usage:    "Validator indexes this sidecar is authorized to commit on behalf of",
		Required: true,
	}
	OperatorAddressesFlag = &cli.StringSliceFlag{
		Name:     "operator-addresses",
		Usage:    "validatorIndex:0xAddress pairs; a commitment request for that validator's duty must carry an ECDSA signature recovering to this address",
		Required: true,
	}
	DelegationsPathFlag = &cli.StringFlag{
		Name:  "delegations-path",
		Usage: "Path to a JSON file of signed delegations to load at startup",
	}
	RevocationsPathFlag = &cli.StringFlag{
		Name:  "revocations-path",
		Usage: "Path to a JSON file of signed revocations to load at startup",
	}
	UnsafeLookaheadFlag = &cli.BoolFlag{
		Name:  "unsafe-lookahead",
		Usage: "Admit commitment requests for the next, not-yet-final epoch's proposer duties",
		Value: false,
	}
	LogFormatFlag = &cli.StringFlag{
		Name:  "log-format",
		Usage: "Log output format: text, json or fluentd",
		Value: "text",
	}
	LogLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level: trace, debug, info, warn, error",
		Value: "info",
	}
)

// Flags is the full flag set registered on the cli.App in cmd/sidecar.
var Flags = []cli.Flag{
	ChainFlag,
	BeaconAPIURLFlag,
	ExecutionAPIURLFlag,
	ConstraintsAPIURLFlag,
	CommitmentsPortFlag,
	ConstraintsProxyPortFlag,
	CommitmentPrivateKeyFlag,
	ConstraintPrivateKeyFlag,
	KeystorePathFlag,
	KeystorePasswordFlag,
	KeystoreSecretsPathFlag,
	RemoteSignerURLFlag,
	RemoteSignerJWTFlag,
	ValidatorIndexesFlag,
	OperatorAddressesFlag,
	DelegationsPathFlag,
	RevocationsPathFlag,
	UnsafeLookaheadFlag,
	LogFormatFlag,
	LogLevelFlag,
}
