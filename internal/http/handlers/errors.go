// Package handlers defines the stable error codes returned by the API and the
// mapping from service errors to HTTP statuses.
//
// Business denials (unknown tier, unmet requirement, expired or redeemed
// token) are 4xx with a specific code so the chat adapter can render tailored
// feedback. Anything unrecognized is an infrastructure failure: 500, logged.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "token_expired",
//	  "message": "token has expired"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/tbourn/dianabot-core/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeUnavailable      = "unavailable"

	// Domain-specific:
	ErrCodeMissingUser         = "missing_user"
	ErrCodeUnknownTier         = "unknown_tier"
	ErrCodePreconditionNotMet  = "precondition_not_met"
	ErrCodeTokenExpired        = "token_expired"
	ErrCodeTokenRedeemed       = "token_already_redeemed"
	ErrCodeInvalidCredential   = "invalid_credential"
	ErrCodeInsufficientBalance = "insufficient_balance"
)

var errorTable = []struct {
	err    error
	status int
	code   string
}{
	{services.ErrInvalidInteraction, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrInvalidAmount, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrUnknownTier, http.StatusBadRequest, ErrCodeUnknownTier},
	{services.ErrPreconditionNotMet, http.StatusForbidden, ErrCodePreconditionNotMet},
	{services.ErrInvalidCredential, http.StatusUnauthorized, ErrCodeInvalidCredential},
	{services.ErrTokenNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrTokenExpired, http.StatusGone, ErrCodeTokenExpired},
	{services.ErrTokenAlreadyRedeemed, http.StatusConflict, ErrCodeTokenRedeemed},
	{services.ErrInsufficientBalance, http.StatusConflict, ErrCodeInsufficientBalance},
	{services.ErrLedgerContention, http.StatusServiceUnavailable, ErrCodeUnavailable},
	{services.ErrUnavailable, http.StatusServiceUnavailable, ErrCodeUnavailable},
}

// statusFor maps err to (status, code). Unknown errors are 500.
func statusFor(err error) (int, string) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, ErrCodeInternal
}
