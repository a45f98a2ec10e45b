package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"lendledger/native/bank"
	nativecommon "lendledger/native/common"
	"lendledger/native/lending"
)

var (
	errMissingCaller = errors.New("caller identity required")
	errBadRequest    = errors.New("invalid request")
)

type errorMapping struct {
	target error
	status int
	kind   string
}

var errorTable = []errorMapping{
	{lending.ErrLoanNotFound, http.StatusNotFound, "loan_not_found"},
	{lending.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{lending.ErrUserBlacklisted, http.StatusForbidden, "blacklisted"},
	{lending.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{lending.ErrInvalidInterestRate, http.StatusBadRequest, "invalid_interest_rate"},
	{lending.ErrInvalidDuration, http.StatusBadRequest, "invalid_duration"},
	{lending.ErrInsufficientCollateral, http.StatusBadRequest, "insufficient_collateral"},
	{lending.ErrInsufficientBalance, http.StatusBadRequest, "insufficient_balance"},
	{lending.ErrLoanNotActive, http.StatusConflict, "loan_not_active"},
	{lending.ErrLoanAlreadyRepaid, http.StatusConflict, "loan_already_repaid"},
	{lending.ErrLoanExpired, http.StatusConflict, "loan_expired"},
	{lending.ErrCollateralSeized, http.StatusConflict, "collateral_seized"},
	{lending.ErrRateUpdateTooFrequent, http.StatusConflict, "rate_update_too_frequent"},
	{lending.ErrMaxExtensionsReached, http.StatusConflict, "max_extensions"},
	{lending.ErrMaxRefinancesReached, http.StatusConflict, "max_refinances"},
	{lending.ErrNotVariableRate, http.StatusConflict, "not_variable_rate"},
	{lending.ErrOwnerAlreadySet, http.StatusConflict, "owner_already_set"},
	{lending.ErrTransferFailed, http.StatusInternalServerError, "transfer_failed"},
	{bank.ErrInsufficientFunds, http.StatusPaymentRequired, "insufficient_funds"},
	{bank.ErrZeroAddress, http.StatusBadRequest, "zero_address"},
	{nativecommon.ErrModulePaused, http.StatusServiceUnavailable, "paused"},
	{nativecommon.ErrQuotaRequestsExceeded, http.StatusTooManyRequests, "quota_requests"},
	{nativecommon.ErrQuotaValueCapExceeded, http.StatusTooManyRequests, "quota_value"},
	{nativecommon.ErrQuotaCounterOverflow, http.StatusTooManyRequests, "quota_overflow"},
	{errMissingCaller, http.StatusUnauthorized, "missing_caller"},
	{errBadRequest, http.StatusBadRequest, "bad_request"},
}

func classify(err error) (int, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			return m.status, m.kind
		}
	}
	return http.StatusInternalServerError, "internal"
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeError(w http.ResponseWriter, err error) {
	status, kind := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError && !lending.IsLendingError(err) {
		message = "internal error"
	}
	writeJSON(w, status, errorBody{Error: message, Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
