package brain

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes brain errors.
type ErrorCode string

const (
	// ErrCodeMissingKey indicates Set was given a record without a key.
	ErrCodeMissingKey ErrorCode = "MISSING_KEY"

	// ErrCodeInvalidKey indicates a record failed validation.
	ErrCodeInvalidKey ErrorCode = "INVALID_KEY"

	// ErrCodeUnknownType indicates a type tag that is not registered.
	ErrCodeUnknownType ErrorCode = "UNKNOWN_TYPE"

	// ErrCodeTypeMismatch indicates a record whose type does not belong in
	// the collection.
	ErrCodeTypeMismatch ErrorCode = "TYPE_MISMATCH"

	// ErrCodeUnknownCollection indicates a collection name that is not
	// registered.
	ErrCodeUnknownCollection ErrorCode = "UNKNOWN_COLLECTION"

	// ErrCodeNotSequence indicates GetManyFrom was given something other
	// than a list of keys.
	ErrCodeNotSequence ErrorCode = "NOT_SEQUENCE"

	// ErrCodeDuplicate indicates a type tag or collection name registered
	// twice.
	ErrCodeDuplicate ErrorCode = "DUPLICATE_REGISTRATION"
)

// Error is a structured brain error.
type Error struct {
	Code       ErrorCode
	Message    string
	Collection string
	Key        string
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Collection != "" && e.Key != "":
		return fmt.Sprintf("%s: %s (collection=%s, key=%s)", e.Code, e.Message, e.Collection, e.Key)
	case e.Collection != "":
		return fmt.Sprintf("%s: %s (collection=%s)", e.Code, e.Message, e.Collection)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

func hasCode(err error, code ErrorCode) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}

// IsInvalidRecord returns true if err reports a record that failed
// validation.
func IsInvalidRecord(err error) bool { return hasCode(err, ErrCodeInvalidKey) }

// IsMissingKey returns true if err reports a keyless record.
func IsMissingKey(err error) bool { return hasCode(err, ErrCodeMissingKey) }

// IsUnknownType returns true if err reports an unregistered type tag.
func IsUnknownType(err error) bool { return hasCode(err, ErrCodeUnknownType) }

// IsTypeMismatch returns true if err reports a record of a foreign type.
func IsTypeMismatch(err error) bool { return hasCode(err, ErrCodeTypeMismatch) }

// IsUnknownCollection returns true if err reports an unregistered
// collection.
func IsUnknownCollection(err error) bool { return hasCode(err, ErrCodeUnknownCollection) }

// IsNotSequence returns true if err reports a non-list key argument.
func IsNotSequence(err error) bool { return hasCode(err, ErrCodeNotSequence) }

// IsDuplicate returns true if err reports a repeated registration.
func IsDuplicate(err error) bool { return hasCode(err, ErrCodeDuplicate) }
