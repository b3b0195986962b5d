// Package tradeerr defines the recoverable error taxonomy shared by the market,
// exchange, and economy packages. Callers match with errors.Is; messages carry
// the detail via %w wrapping.
package tradeerr

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrInsufficientReputation = errors.New("insufficient reputation")
	ErrInvalidState           = errors.New("invalid state")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrCapacityExceeded       = errors.New("capacity exceeded")
)
