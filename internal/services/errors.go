// Package services defines the business logic of the coordination core: the
// reward ledger, the progression engine, the access token issuer, and the
// coordinator that wires them through the event bus.
// This file centralizes the service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Business-rule errors are expected outcomes. Translation into user-facing
// messages or HTTP status codes is performed at the handler layer.
package services

import "errors"

// Ledger errors.
var (
	// ErrDuplicateCredit is returned when a credit for the same source event
	// was already applied. The balance is unaffected.
	ErrDuplicateCredit = errors.New("credit already applied for this source event")

	// ErrInsufficientBalance is returned when a debit exceeds the balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrLedgerContention is returned when the optimistic retry budget of a
	// balance update is exhausted.
	ErrLedgerContention = errors.New("ledger update contention")
)

// Access token errors.
var (
	ErrPreconditionNotMet   = errors.New("tier requirements not met")
	ErrUnknownTier          = errors.New("unknown resource tier")
	ErrTokenNotFound        = errors.New("token not found")
	ErrTokenExpired         = errors.New("token expired")
	ErrTokenAlreadyRedeemed = errors.New("token already redeemed")
	ErrInvalidCredential    = errors.New("invalid token credential")
)

// Coordinator errors.
var (
	// ErrInvalidInteraction is returned when the boundary supplies an
	// interaction without a user, kind, or timestamp.
	ErrInvalidInteraction = errors.New("invalid interaction")

	// ErrUnavailable is returned when a component reports it cannot serve.
	ErrUnavailable = errors.New("service unavailable")
)

// IsDenial reports whether err is a business-rule denial that the boundary
// should render to the user rather than treat as a failure.
func IsDenial(err error) bool {
	for _, d := range []error{
		ErrInsufficientBalance, ErrPreconditionNotMet, ErrTokenExpired,
		ErrTokenAlreadyRedeemed, ErrTokenNotFound, ErrInvalidCredential,
	} {
		if errors.Is(err, d) {
			return true
		}
	}
	return false
}
