package domain

import "errors"

var (
	ErrRejected         = errors.New("command rejected")
	ErrOrderNotFound    = errors.New("order not found")
	ErrProductNotFound  = errors.New("product not found")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrStatusRegression = errors.New("status cannot move from complete to pending")
	ErrOrderClosed      = errors.New("order is closed")
	ErrNotOwner         = errors.New("order belongs to another user")
	ErrVersionConflict  = errors.New("order version conflict")
	ErrCommandNotFound  = errors.New("command not found")
	ErrDuplicateCommand = errors.New("command already processed")
	ErrEmptyOrder       = errors.New("order must contain at least one product")
	ErrInvalidQuantity  = errors.New("quantity must be a positive integer")
	ErrUnknownCommand   = errors.New("unknown command type")
)

// RejectionError marks a business rejection of a command. It matches both
// ErrRejected and its cause under errors.Is.
type RejectionError struct {
	Cause error
}

func (e *RejectionError) Error() string { return e.Cause.Error() }

func (e *RejectionError) Unwrap() []error { return []error{ErrRejected, e.Cause} }

func Reject(cause error) error {
	return &RejectionError{Cause: cause}
}
