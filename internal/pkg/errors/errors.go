package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input, wrapped by
	// validate_order when an order has no items.
	ErrInvalidArgument = errors.New("invalid argument")
)
