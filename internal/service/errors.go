package service

import (
	"errors"
	"fmt"

	"github.com/kkkkikiki/loyalty/internal/codegen"
)

// Business errors. All are recoverable and leave no partial state behind.
var (
	// ErrNotFound covers absent entities, unknown codes and entities that
	// belong to another business.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyUsed is returned when a stamp is no longer active.
	ErrAlreadyUsed = errors.New("stamp already used")

	// ErrAlreadyRedeemed is returned when the same client redeems a stamp a
	// second time.
	ErrAlreadyRedeemed = errors.New("stamp already redeemed by this client")

	// ErrExpired is returned for stamps and tickets past their expiry.
	ErrExpired = errors.New("expired")

	// ErrInsufficientPoints is returned when a card cannot cover a reward.
	ErrInsufficientPoints = errors.New("insufficient points")

	// ErrOutOfStock is returned when a finite reward has no units left.
	ErrOutOfStock = errors.New("reward out of stock")

	// ErrRewardExpired is returned when a reward's expiration date passed.
	ErrRewardExpired = errors.New("reward expired")

	// ErrNoCard is returned when a client has no card at the business.
	ErrNoCard = errors.New("client has no card for this business")

	// ErrConflict is returned when concurrent writers kept colliding after
	// every retry.
	ErrConflict = errors.New("concurrent modification conflict")

	// ErrInvalidArgument is returned for malformed input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrCodeSpaceExhausted is returned when no free code was found within
	// the retry cap.
	ErrCodeSpaceExhausted = codegen.ErrCodeSpaceExhausted
)

// ErrInvariantViolation marks stored data that breaks a balance invariant.
// It is fatal: the operation aborts and the data is left for inspection.
var ErrInvariantViolation = errors.New("invariant violation")

// InsufficientPointsError provides details about a balance shortage.
type InsufficientPointsError struct {
	CardID    string
	Available int
	Requested int
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points: available %d, requested %d", e.Available, e.Requested)
}

func (e *InsufficientPointsError) Unwrap() error {
	return ErrInsufficientPoints
}

// IsBusinessError reports whether err is one of the recoverable business
// errors above.
func IsBusinessError(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrAlreadyUsed, ErrAlreadyRedeemed, ErrExpired,
		ErrInsufficientPoints, ErrOutOfStock, ErrRewardExpired, ErrNoCard,
		ErrConflict, ErrInvalidArgument, ErrCodeSpaceExhausted,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsFatal reports whether err signals corrupted state.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvariantViolation)
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func notFound(what string) error {
	return fmt.Errorf("%s: %w", what, ErrNotFound)
}

// resultLabel turns an operation outcome into a metrics label.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyUsed), errors.Is(err, ErrAlreadyRedeemed):
		return "already_used"
	case errors.Is(err, ErrExpired), errors.Is(err, ErrRewardExpired):
		return "expired"
	case errors.Is(err, ErrInsufficientPoints), errors.Is(err, ErrNoCard):
		return "insufficient"
	case errors.Is(err, ErrOutOfStock):
		return "out_of_stock"
	case IsBusinessError(err):
		return "rejected"
	default:
		return "error"
	}
}
