package errors

import stderrors "errors"

// Protocol error kinds. Engines wrap these with call-specific detail; callers
// match them with errors.Is.
var (
	ErrInvalidAmount       = stderrors.New("invalid amount")
	ErrInvalidDuration     = stderrors.New("invalid lock duration")
	ErrLockExpired         = stderrors.New("lock expired")
	ErrLockNotExpired      = stderrors.New("lock not expired")
	ErrNotOwner            = stderrors.New("caller does not own position")
	ErrSamePosition        = stderrors.New("cannot merge a position into itself")
	ErrInsufficientBalance = stderrors.New("insufficient balance")
	ErrArityMismatch       = stderrors.New("pools and weights length mismatch")
	ErrEmptyVote           = stderrors.New("empty vote")
	ErrGaugeExists         = stderrors.New("gauge already exists")
	ErrRateOverflow        = stderrors.New("reward rate out of range")
	ErrAlreadyInitialized  = stderrors.New("already initialized")
)

var (
	ErrPositionNotFound    = stderrors.New("position not found")
	ErrPositionInUse       = stderrors.New("position is voting or attached")
	ErrUnknownPool         = stderrors.New("pool has no gauge")
	ErrDuplicatePool       = stderrors.New("duplicate pool in vote")
	ErrZeroWeight          = stderrors.New("vote weights sum to zero")
	ErrCatchUpRequired     = stderrors.New("reward accumulator behind; batch advance required")
	ErrTooManyRewardTokens = stderrors.New("too many reward tokens")
	ErrInvalidRewardToken  = stderrors.New("invalid reward token")
	ErrNotInitialized      = stderrors.New("not initialized")
	ErrUnauthorized        = stderrors.New("unauthorized")
	ErrTransferFailed      = stderrors.New("token transfer failed")
)
