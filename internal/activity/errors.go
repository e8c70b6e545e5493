package activity

import (
	"errors"
	"fmt"
)

// Sentinel errors for aggregation membership rules.
var (
	// ErrDuplicateMember is returned when a group already contains the member.
	ErrDuplicateMember = errors.New("activity: duplicate member in aggregated activity")
	// ErrMemberNotFound is returned when removing a member that is absent.
	ErrMemberNotFound = errors.New("activity: member not found in aggregated activity")
	// ErrEmptyAggregation is returned when removing the last remaining member
	// of a group; an empty group is meaningless and must be deleted instead.
	ErrEmptyAggregation = errors.New("activity: cannot remove last member of aggregated activity")
)

// ValidationError reports a malformed Activity construction.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("activity: invalid activity: %s", e.Reason)
}

// SerializationError reports a corrupt or reserved-character-containing
// payload observed during encode or decode.
type SerializationError struct {
	Reason string
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("activity: serialization error: %s", e.Reason)
}

// NewSerializationError builds a SerializationError with a formatted reason.
func NewSerializationError(format string, args ...interface{}) *SerializationError {
	return &SerializationError{Reason: fmt.Sprintf(format, args...)}
}
