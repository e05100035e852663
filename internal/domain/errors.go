package domain

import (
	"errors"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sentinel errors — compare with errors.Is()
// ──────────────────────────────────────────────────────────────────────────────

// Quote input errors
var (
	// ErrTooFewLegs is returned when a quote or parlay has fewer than two legs.
	ErrTooFewLegs = errors.New("a parlay needs at least two legs")

	// ErrInvalidStake is returned when the stake is zero or negative.
	ErrInvalidStake = errors.New("stake must be a positive amount")

	// ErrInvalidProbability is returned when a leg probability is outside (0, 100).
	ErrInvalidProbability = errors.New("leg probability must be strictly between 0 and 100 percent")

	// ErrInvalidSide is returned when a leg side is neither yes nor no.
	ErrInvalidSide = errors.New("side must be yes or no")

	// ErrEnvironmentMismatch is returned when legs span demo and production, or a
	// request targets a different environment than the process runs in.
	ErrEnvironmentMismatch = errors.New("all legs must share one environment")
)

// Parlay / settlement errors
var (
	// ErrParlayNotFound is returned when no parlay matches the session id.
	ErrParlayNotFound = errors.New("parlay not found")

	// ErrParlaySettled is returned when a settlement pass targets a parlay that
	// already left the pending state.
	ErrParlaySettled = errors.New("parlay is already settled")

	// ErrNotClaimable is returned when a claim targets a parlay that has not won.
	ErrNotClaimable = errors.New("parlay has no claimable winnings")

	// ErrAlreadyClaimed is returned on a second claim of the same parlay.
	ErrAlreadyClaimed = errors.New("winnings already claimed")
)

// Wallet / ledger errors
var (
	// ErrUserNotFound is returned when no user matches the given criteria.
	ErrUserNotFound = errors.New("user not found")

	// ErrWalletNotFound is returned when no wallet exists for the requested user.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrInsufficientFunds is returned when a debit would take a wallet negative.
	ErrInsufficientFunds = errors.New("insufficient wallet balance")

	// ErrBelowMinWithdraw is returned when the requested withdrawal amount is
	// below the configured minimum.
	ErrBelowMinWithdraw = errors.New("withdrawal amount is below the minimum")

	// ErrWithdrawalNotFound is returned when no withdrawal request matches the id.
	ErrWithdrawalNotFound = errors.New("withdrawal request not found")

	// ErrWithdrawalNotPending is returned when completing or failing a request
	// that already left the pending state.
	ErrWithdrawalNotPending = errors.New("withdrawal request is not pending")

	// ErrPurchaseNotFound is returned when no pending purchase matches the
	// provider session id.
	ErrPurchaseNotFound = errors.New("pending purchase not found")
)

// Draft errors
var (
	// ErrDraftLegNotFound is returned when deleting a draft leg that does not exist.
	ErrDraftLegNotFound = errors.New("draft leg not found")
)

// Auth errors
var (
	// ErrUnauthorized is returned when a valid bearer token is not present.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the token subject does not own the resource.
	ErrForbidden = errors.New("forbidden")

	// ErrTokenInvalid is returned when a token cannot be parsed or its signature
	// does not match.
	ErrTokenInvalid = errors.New("token is invalid")
)

// ──────────────────────────────────────────────────────────────────────────────
// Helper predicates
// ──────────────────────────────────────────────────────────────────────────────

// notFoundErrors collects all "entity not found" sentinel errors so that
// IsNotFound can stay in sync automatically.
var notFoundErrors = []error{
	ErrParlayNotFound,
	ErrUserNotFound,
	ErrWalletNotFound,
	ErrWithdrawalNotFound,
	ErrPurchaseNotFound,
	ErrDraftLegNotFound,
}

// IsNotFound returns true when err (or any error in its chain) is one of the
// domain "not found" errors.  Use this instead of comparing error values
// directly when translating domain errors to HTTP 404 responses.
func IsNotFound(err error) bool {
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsConflict returns true for errors that represent a state conflict.  Conflict
// errors never mutate state and map to HTTP 409.
func IsConflict(err error) bool {
	conflictErrors := []error{
		ErrAlreadyClaimed,
		ErrParlaySettled,
		ErrNotClaimable,
		ErrWithdrawalNotPending,
		ErrEnvironmentMismatch,
	}
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsInputError returns true for request-shaped errors that map to HTTP 400.
func IsInputError(err error) bool {
	inputErrors := []error{
		ErrTooFewLegs,
		ErrInvalidStake,
		ErrInvalidProbability,
		ErrInvalidSide,
		ErrBelowMinWithdraw,
	}
	for _, target := range inputErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
