package services

import (
	"errors"
	"fmt"
)

// NotFoundError marks a missing athlete or ranking snapshot. Fatal to the
// calculation and surfaced to the caller with the missing key named.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

// InsufficientDataError marks a calculation with no points basis. Fatal to the
// calculation; the caller needs points data before trying again.
type InsufficientDataError struct {
	Reason string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for calculation: %s", e.Reason)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsInsufficientData reports whether err is an InsufficientDataError.
func IsInsufficientData(err error) bool {
	var id *InsufficientDataError
	return errors.As(err, &id)
}
