package ledger

import "errors"

// Sentinel errors for ledger store operations.
var (
	ErrEventNotFound = errors.New("integrity event not found")
	ErrDuplicateRoot = errors.New("integrity event already recorded for this round")
)
