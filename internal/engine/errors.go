package engine

import "errors"

var (
	// Construction failures.
	ErrNilAsset       = errors.New("asset identity must be non-zero")
	ErrIdenticalAsset = errors.New("asset identities must be distinct")

	// Argument failures.
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrUnknownAsset  = errors.New("asset is not part of this pool")

	// Liquidity failures.
	ErrNoLiquidity     = errors.New("pool reserves are empty")
	ErrExcessiveOutput = errors.New("output would meet or exceed the opposing reserve")

	// Accounting failures.
	ErrInsufficientShares = errors.New("share balance below requested burn")
	ErrZeroShares         = errors.New("deposit too small to mint any share")
	ErrZeroOutput         = errors.New("computed output rounds to zero")

	// Collaborator failures.
	ErrTransferFailed = errors.New("asset transfer failed")
	ErrReentrantCall  = errors.New("pool operation already in progress")
)
