package ledger

import "errors"

// Validation errors
var (
	ErrInvalidPrice    = errors.New("listing price must be greater than zero")
	ErrFeeTooHigh      = errors.New("fee exceeds maximum basis points")
	ErrInvalidMetadata = errors.New("invalid asset metadata")
)

// Authorization errors
var (
	ErrNotOwner     = errors.New("caller is not the asset owner")
	ErrNotApproved  = errors.New("caller is not approved for transfer")
	ErrNotSeller    = errors.New("caller is not the listing seller")
	ErrUnauthorized = errors.New("caller is not the marketplace admin")
)

// State errors
var (
	ErrUnknownAsset      = errors.New("unknown asset id")
	ErrItemNotFound      = errors.New("market item not found")
	ErrAlreadySold       = errors.New("market item already sold")
	ErrNothingToWithdraw = errors.New("nothing to withdraw")
)

// Payment errors
var (
	ErrWrongPrice     = errors.New("payment does not match listing price")
	ErrTransferFailed = errors.New("value transfer failed")
)
