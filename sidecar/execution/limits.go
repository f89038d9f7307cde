package execution

// Limits bounds a single slot's block template. DefaultReplacementFeeBumpPercent
// fixes the Open Question that the sidecar's design leaves unquantified in the
// source: a replacement transaction must pay at least this many percent
// more than the one it replaces (see design decision 2).
const DefaultReplacementFeeBumpPercent = 10

// Limits bundles the per-block resource caps the execution validator
// enforces while admitting transactions into a template.
type Limits struct {
	// BlockGasLimit is the maximum cumulative gas a template may commit.
	BlockGasLimit uint64
	// MaxGasPerTransaction is the per-transaction gas limit cap.
	MaxGasPerTransaction uint64
	// MaxBlobsPerBlock is the maximum cumulative blob count a template may commit.
	MaxBlobsPerBlock int
}

// DefaultLimits mirrors mainnet's block gas limit and the Deneb per-block
// blob maximum (6 blobs).
var DefaultLimits = Limits{
	BlockGasLimit:        30_000_000,
	MaxGasPerTransaction: 30_000_000,
	MaxBlobsPerBlock:     6,
}
