// Package domain contains the core, I/O-free business logic for the wallet
// service: the event-sourced wallet aggregate, the transfer saga state
// machine, and the event/fraud models they produce.
package domain

import "errors"

var (
	// ErrInvalidAmount is returned when a deposit or withdrawal amount is not
	// strictly positive.
	ErrInvalidAmount = errors.New("amount must be greater than zero")

	// ErrInsufficientFunds is returned when a withdrawal would drive the
	// wallet balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrConcurrencyConflict is returned by the event log when the expected
	// version no longer matches the aggregate's current version.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrWalletNotFound is returned when a read path is asked for a wallet
	// that has never had an event appended.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrSagaNotFound is returned when a saga row does not exist.
	ErrSagaNotFound = errors.New("transfer saga not found")
)
