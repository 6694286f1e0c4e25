package domain

import "errors"

// Failure taxonomy for the resolution core. Every failure is a whole-call
// abort: callers never observe partial state after receiving one of these.
var (
	// ErrGatingFailure covers compliance, reputation, and entropy checks.
	ErrGatingFailure = errors.New("gating check failed")

	// ErrInvalidBid is returned on a reveal mismatch or a settlement with
	// zero valid reveals among the candidates.
	ErrInvalidBid = errors.New("invalid bid")

	// ErrFlashloanFailed means every configured provider was exhausted.
	ErrFlashloanFailed = errors.New("all flashloan providers failed")

	// ErrDustAmount is a loan amount whose log-magnitude is below the
	// router minimum; no provider is contacted.
	ErrDustAmount = errors.New("loan amount below minimum magnitude")

	// ErrExecutionFailed means the opaque payload itself failed. The intent
	// stays submitted so the caller can retry with corrected parameters.
	ErrExecutionFailed = errors.New("payload execution failed")

	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDuplicateIntent     = errors.New("duplicate intent id")
	ErrIntentNotFound      = errors.New("intent not found")
	ErrIntentFinalized     = errors.New("intent already finalized")

	// ErrReentrantCall is returned when a payload or flashloan callback
	// re-enters the coordinator mid-resolution.
	ErrReentrantCall = errors.New("reentrant call rejected")

	ErrAuctionNotOpen   = errors.New("auction not open")
	ErrAuctionStillOpen = errors.New("auction still open")
	ErrAuctionSettled   = errors.New("auction already settled")

	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrLockHeld     = errors.New("lock already held")
)
