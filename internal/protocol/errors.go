package protocol

import "errors"

// Sentinel errors for every rejected operation. Handlers wrap these with
// context; callers and the API layer match with errors.Is.
var (
	ErrInvalidConfig          = errors.New("invalid pool configuration")
	ErrAlreadyInitialized     = errors.New("pool already initialized")
	ErrNotInitialized         = errors.New("pool not initialized")
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrInsufficientLiquidity  = errors.New("insufficient pool liquidity")
	ErrInsufficientCollateral = errors.New("insufficient collateral")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrReputationTooLow       = errors.New("borrower reputation below threshold")
	ErrNotAllowListed         = errors.New("borrower not on allow-list")
	ErrLoanNotFound           = errors.New("loan not found")
	ErrLoanNotExpired         = errors.New("loan has not expired")
	ErrAlreadyResolved        = errors.New("loan already resolved")
	ErrUnauthorized           = errors.New("caller not authorized")
	ErrUnknownAsset           = errors.New("unknown asset")
	ErrNoStake                = errors.New("no stake position")
)
