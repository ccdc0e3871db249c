package services

import "errors"

var (
	// ErrDiscountInvalidInput signals the supplied discount payload or code is invalid.
	ErrDiscountInvalidInput = errors.New("discount: invalid input")
	// ErrDiscountNotFound indicates no discount exists for the provided code or id.
	ErrDiscountNotFound = errors.New("discount: not found")
	// ErrDiscountConflict indicates a duplicate code or concurrent modification.
	ErrDiscountConflict = errors.New("discount: conflict")
	// ErrDiscountInactive indicates the discount has been switched off.
	ErrDiscountInactive = errors.New("discount: inactive")
	// ErrDiscountNotYetActive indicates the discount window has not opened.
	ErrDiscountNotYetActive = errors.New("discount: not yet active")
	// ErrDiscountExpired indicates the discount window has closed.
	ErrDiscountExpired = errors.New("discount: expired")
	// ErrDiscountBelowMinimum indicates the order total does not meet the floor.
	ErrDiscountBelowMinimum = errors.New("discount: order below minimum value")
)
