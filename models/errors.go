package models

import "errors"

// Round validation errors. These are rejected before any state is touched.
var (
	ErrInvalidAmount  = errors.New("amount must be greater than 0")
	ErrTooManyPlayers = errors.New("round is at player capacity")
	// ErrInvalidIdentity is returned for an empty identity or one that
	// names a pool account where a player is expected
	ErrInvalidIdentity = errors.New("identity is required")
)

// Round precondition errors
var (
	ErrNoPlayers          = errors.New("no players in the lottery")
	ErrAlreadyInitialized = errors.New("round already initialized")
	ErrRoundNotFound      = errors.New("round not found")
)

// Integrity errors. An invocation failing with one of these applies nothing.
var (
	ErrOverflow           = errors.New("arithmetic overflow")
	ErrUnauthorizedPayee  = errors.New("payee is not the selected winner")
	ErrUnverifiablePayout = errors.New("counter layout cannot verify the payee")
)

// Ledger errors
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Configuration errors
var (
	ErrInvalidLayout   = errors.New("invalid round layout")
	ErrInvalidCapacity = errors.New("invalid round capacity")
)
