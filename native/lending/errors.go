package lending

import "errors"

var (
	ErrInvalidAmount          = errors.New("lending: invalid amount")
	ErrInvalidInterestRate    = errors.New("lending: invalid interest rate")
	ErrInvalidDuration        = errors.New("lending: invalid duration")
	ErrInsufficientCollateral = errors.New("lending: insufficient collateral")
	ErrInsufficientBalance    = errors.New("lending: insufficient balance")
	ErrLoanNotFound           = errors.New("lending: loan not found")
	ErrLoanNotActive          = errors.New("lending: loan not active")
	ErrLoanAlreadyRepaid      = errors.New("lending: loan already repaid")
	ErrLoanExpired            = errors.New("lending: loan expired")
	ErrCollateralSeized       = errors.New("lending: collateral already seized")
	ErrUserBlacklisted        = errors.New("lending: user blacklisted")
	ErrUnauthorized           = errors.New("lending: unauthorized")
	ErrTransferFailed         = errors.New("lending: transfer failed")

	ErrRateUpdateTooFrequent = errors.New("lending: interest rate updated too recently")
	ErrMaxExtensionsReached  = errors.New("lending: maximum extensions reached")
	ErrMaxRefinancesReached  = errors.New("lending: maximum refinances reached")
	ErrNotVariableRate       = errors.New("lending: loan is not variable rate")
	ErrOwnerAlreadySet       = errors.New("lending: owner already initialised")

	errNilState = errors.New("lending: storage not configured")
	errNilHost  = errors.New("lending: host not provided")
)
