package execution

// Error is the execution-reject taxonomy from the sidecar's design: chain-id
// mismatch, bad signature, nonce problems, insufficient balance, gas/blob
// overflow, replacement underpriced, invalid blob sidecar. Every Error
// carries a Tag used for metrics and the JSON-RPC -32002 response.
type Error struct {
	kind   string
	reason string
}

func (e *Error) Error() string { return e.reason }

// Tag returns the taxonomy tag used for metrics (ApiMetrics.increment_validation_errors
// in the original) and the client-visible reason field.
func (e *Error) Tag() string { return e.kind }

func newErr(kind, reason string) *Error { return &Error{kind: kind, reason: reason} }

var (
	ErrChainIDMismatch        = newErr("chain_id_mismatch", "transaction chain id does not match configured chain")
	ErrInvalidSignature       = newErr("invalid_signature", "could not recover sender from transaction signature")
	ErrNonceTooLow            = newErr("nonce_too_low", "transaction nonce is lower than the account's projected nonce")
	ErrNonceGap               = newErr("nonce_gap", "transaction nonce is higher than the account's projected nonce")
	ErrInsufficientBalance    = newErr("insufficient_balance", "account balance insufficient to cover the transaction's maximum cost")
	ErrGasLimitTooHigh        = newErr("gas_limit_too_high", "transaction gas limit exceeds the per-transaction cap")
	ErrBlockGasLimitExceeded  = newErr("block_gas_limit_exceeded", "cumulative gas used would exceed the block gas limit")
	ErrBlobSidecarMissing     = newErr("blob_sidecar_missing", "eip-4844 transaction is missing its blob sidecar")
	ErrBlobCommitmentMismatch = newErr("blob_commitment_mismatch", "versioned hash does not match kzg commitment")
	ErrBlobLimitExceeded      = newErr("blob_limit_exceeded", "cumulative blob count would exceed the per-block blob limit")
	ErrReplacementUnderpriced = newErr("replacement_underpriced", "replacement transaction does not pay the minimum fee bump")
	ErrAccountHasCode         = newErr("sender_is_contract", "transaction sender is a smart contract, not an EOA")
)
