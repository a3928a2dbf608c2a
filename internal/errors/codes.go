package errors

// ErrorCode represents a machine-readable error identifier for frontend error handling.
type ErrorCode string

// Purchase flow errors
const (
	// Precondition failures - the flow must not start
	ErrCodeWalletNotConnected ErrorCode = "wallet_not_connected"
	ErrCodeItemNotFound       ErrorCode = "item_not_found"

	// Flow state errors
	ErrCodePurchaseNotFound   ErrorCode = "purchase_not_found"
	ErrCodePurchaseInFlight   ErrorCode = "purchase_in_flight"
	ErrCodeAlreadySubmitted   ErrorCode = "already_submitted"
	ErrCodeAlreadyPaid        ErrorCode = "already_paid"
	ErrCodeContentNotUnlocked ErrorCode = "content_not_unlocked"
)

// Payment submission errors
const (
	ErrCodeBuilderUnavailable ErrorCode = "builder_unavailable"
	ErrCodeInvalidTransaction ErrorCode = "invalid_transaction"
	ErrCodeSigningRejected    ErrorCode = "signing_rejected"
	ErrCodeBroadcastFailed    ErrorCode = "broadcast_failed"
)

// Confirmation errors
const (
	ErrCodeReferenceNotFound       ErrorCode = "reference_not_found"
	ErrCodeTransactionNotConfirmed ErrorCode = "transaction_not_confirmed"
	ErrCodeTransactionFailed       ErrorCode = "transaction_failed"
)

// Validation errors (request input validation)
const (
	ErrCodeMissingField  ErrorCode = "missing_field"
	ErrCodeInvalidField  ErrorCode = "invalid_field"
	ErrCodeInvalidWallet ErrorCode = "invalid_wallet"
)

// External service errors
const (
	ErrCodeRPCError     ErrorCode = "rpc_error"
	ErrCodeNetworkError ErrorCode = "network_error"
	ErrCodeLedgerError  ErrorCode = "ledger_error"
)

// Internal/system errors
const (
	ErrCodeInternalError ErrorCode = "internal_error"
	ErrCodeDatabaseError ErrorCode = "database_error"
	ErrCodeConfigError   ErrorCode = "config_error"
)

// IsRetryable returns whether an error code represents a retryable error.
// Retryable errors are typically transient network/service issues, not validation failures.
func (e ErrorCode) IsRetryable() bool {
	switch e {
	case ErrCodeRPCError,
		ErrCodeNetworkError,
		ErrCodeLedgerError,
		ErrCodeBuilderUnavailable,
		ErrCodeBroadcastFailed,
		ErrCodeTransactionNotConfirmed:
		return true

	// Validation, state, and permanent failures are NOT retryable
	default:
		return false
	}
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	// 400 Bad Request - client validation errors
	case ErrCodeMissingField,
		ErrCodeInvalidField,
		ErrCodeInvalidWallet,
		ErrCodeInvalidTransaction,
		ErrCodeWalletNotConnected:
		return 400

	// 402 Payment Required - payment not yet verified
	case ErrCodeReferenceNotFound,
		ErrCodeTransactionNotConfirmed,
		ErrCodeTransactionFailed,
		ErrCodeSigningRejected,
		ErrCodeContentNotUnlocked:
		return 402

	// 404 Not Found
	case ErrCodeItemNotFound,
		ErrCodePurchaseNotFound:
		return 404

	// 409 Conflict - flow already progressed past the requested action
	case ErrCodePurchaseInFlight,
		ErrCodeAlreadySubmitted,
		ErrCodeAlreadyPaid:
		return 409

	// 502 Bad Gateway - external service errors
	case ErrCodeBuilderUnavailable,
		ErrCodeBroadcastFailed,
		ErrCodeRPCError,
		ErrCodeNetworkError,
		ErrCodeLedgerError:
		return 502

	// 500 Internal Server Error
	default:
		return 500
	}
}
