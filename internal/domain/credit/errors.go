package credit

import "errors"

var (
	// ErrInvalidGrant is returned when a grant has a negative amount or an empty window
	ErrInvalidGrant = errors.New("invalid grant")

	// ErrInvalidDeduction is returned when a deduction amount is <= 0
	ErrInvalidDeduction = errors.New("invalid deduction")

	// ErrInvalidAccount is returned when an account id is missing
	ErrInvalidAccount = errors.New("invalid account id")

	ErrInternal = errors.New("internal error")
)
