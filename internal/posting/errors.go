package posting

import "github.com/cockroachdb/errors"

var (
	// ErrUserNotFound is returned by UserStore implementations for unknown users.
	ErrUserNotFound = errors.New("user not found")

	// ErrIncompleteConfiguration means activation found no destination or no
	// schedule even after applying defaults.
	ErrIncompleteConfiguration = errors.New("incomplete posting configuration")

	// ErrMissingDestination means a firing ran for a user without a destination.
	ErrMissingDestination = errors.New("missing destination")

	// ErrDelivery marks transport failures while delivering an item.
	ErrDelivery = errors.New("delivery failed")
)
