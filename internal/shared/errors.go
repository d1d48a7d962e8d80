package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidFinancialYear indicates an out-of-range financial year.
	ErrInvalidFinancialYear = errors.New("financial year invalid")
)
