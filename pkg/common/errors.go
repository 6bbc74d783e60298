package common

import "net/http"

// Error kinds discriminated by API callers.
const (
	KindEodNotFound            = "eod_not_found"
	KindWrongStep              = "wrong_step"
	KindWrongStatus            = "wrong_status"
	KindNotStartedByCaller     = "not_started_by_caller"
	KindSessionConflict        = "session_conflict"
	KindSessionInvalid         = "session_invalid"
	KindBranchLockedForTrading = "branch_locked_for_trading"
	KindPrintRequired          = "print_required"
	KindValidationFailed       = "validation_failed"
	KindLedgerMutationFailed   = "ledger_mutation_failed"
	KindOrphanAutoCleaned      = "orphan_auto_cleaned"
)

// EODError carries a machine-readable kind alongside the message. Data holds
// non-sensitive context, e.g. the holding lock's operator and start time on a
// session conflict.
type EODError struct {
	Kind    string
	Message string
	Data    interface{}
}

func (e *EODError) Error() string {
	return e.Message
}

func NewEODError(kind, message string) *EODError {
	return &EODError{Kind: kind, Message: message}
}

func NewEODErrorWithData(kind, message string, data interface{}) *EODError {
	return &EODError{Kind: kind, Message: message, Data: data}
}

// HTTPStatus maps an error kind to the response status. 423 is reserved for
// the trading gate.
func HTTPStatus(kind string) int {
	switch kind {
	case KindEodNotFound:
		return http.StatusNotFound
	case KindSessionConflict, KindNotStartedByCaller:
		return http.StatusForbidden
	case KindBranchLockedForTrading:
		return http.StatusLocked
	case KindWrongStep, KindWrongStatus, KindValidationFailed, KindPrintRequired, KindSessionInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
