package domain

import "errors"

// Sentinel errors shared by the simulation packages.
var (
	// ErrInvariant marks a broken precondition such as a closed order being
	// resubmitted. It is fatal to the run that hit it.
	ErrInvariant = errors.New("invariant violation")

	ErrInvalidOrder = errors.New("invalid order")
	ErrUnknownAsset = errors.New("unknown asset")
	ErrNoConversion = errors.New("no exchange rate")
)
