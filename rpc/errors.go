package rpc

import (
	"errors"
	"fmt"
	"net/http"

	coreerrors "vedex/core/errors"
	"vedex/native/common"
	"vedex/native/pool"
	"vedex/native/token"
)

type paramError struct {
	msg string
}

func (e *paramError) Error() string { return e.msg }

func invalidParams(format string, args ...interface{}) error {
	return &paramError{msg: fmt.Sprintf(format, args...)}
}

var errorCodes = []struct {
	err    error
	status int
	code   int
}{
	{common.ErrModulePaused, http.StatusServiceUnavailable, codePaused},
	{coreerrors.ErrUnauthorized, http.StatusForbidden, codeUnauthorized},
	{coreerrors.ErrNotOwner, http.StatusForbidden, codeNotOwner},
	{coreerrors.ErrPositionNotFound, http.StatusNotFound, codeNotFound},
	{coreerrors.ErrUnknownPool, http.StatusNotFound, codeNotFound},
	{coreerrors.ErrInsufficientBalance, http.StatusBadRequest, codeInsufficient},
	{coreerrors.ErrTransferFailed, http.StatusBadRequest, codeInsufficient},
	{coreerrors.ErrCatchUpRequired, http.StatusConflict, codeCatchUp},
	{coreerrors.ErrRateOverflow, http.StatusBadRequest, codeRateOverflow},
	{coreerrors.ErrGaugeExists, http.StatusConflict, codeConflict},
	{coreerrors.ErrAlreadyInitialized, http.StatusConflict, codeConflict},
	{coreerrors.ErrNotInitialized, http.StatusConflict, codeConflict},
	{coreerrors.ErrPositionInUse, http.StatusConflict, codeConflict},
	{coreerrors.ErrLockExpired, http.StatusConflict, codeConflict},
	{coreerrors.ErrLockNotExpired, http.StatusConflict, codeConflict},
	{coreerrors.ErrInvalidAmount, http.StatusBadRequest, codeInvalidParams},
	{coreerrors.ErrInvalidDuration, http.StatusBadRequest, codeInvalidParams},
	{coreerrors.ErrSamePosition, http.StatusBadRequest, codeInvalidParams},
	{coreerrors.ErrArityMismatch, http.StatusBadRequest, codeInvalidParams},
	{coreerrors.ErrEmptyVote, http.StatusBadRequest, codeInvalidParams},
	{coreerrors.ErrDuplicatePool, http.StatusBadRequest, codeInvalidParams},
	{coreerrors.ErrZeroWeight, http.StatusBadRequest, codeInvalidParams},
	{coreerrors.ErrTooManyRewardTokens, http.StatusBadRequest, codeInvalidParams},
	{coreerrors.ErrInvalidRewardToken, http.StatusBadRequest, codeInvalidParams},
	{token.ErrUnknownToken, http.StatusNotFound, codeNotFound},
	{token.ErrTokenRegistered, http.StatusConflict, codeConflict},
	{token.ErrInvalidSymbol, http.StatusBadRequest, codeInvalidParams},
	{token.ErrAllowance, http.StatusBadRequest, codeInsufficient},
	{pool.ErrPoolNotFound, http.StatusNotFound, codeNotFound},
	{pool.ErrPoolExists, http.StatusConflict, codeConflict},
	{pool.ErrInvalidPoolID, http.StatusBadRequest, codeInvalidParams},
	{errEventsDisabled, http.StatusServiceUnavailable, codeServerError},
}

// errorStatus maps a handler error to its HTTP status, JSON-RPC code and
// client message. Unknown errors are reported without detail.
func errorStatus(err error) (int, int, string) {
	var pErr *paramError
	if errors.As(err, &pErr) {
		return http.StatusBadRequest, codeInvalidParams, pErr.msg
	}
	for _, entry := range errorCodes {
		if errors.Is(err, entry.err) {
			return entry.status, entry.code, err.Error()
		}
	}
	return http.StatusInternalServerError, codeServerError, "internal error"
}
