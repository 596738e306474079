package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by repo and service functions when the requested
// resource does not exist, or exists but is invisible to the caller.
// Handlers should map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned by service functions when input is malformed
// (e.g. empty service id list, blank full name).
// Handlers should map this to HTTP 422 Unprocessable Entity.
var ErrValidation = errors.New("validation error")

// ErrForbidden is returned when the acting identity has no relation to the
// visit (or role) that the operation requires.
// Handlers should map this to HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when the visit has already moved past the requested
// transition, or a concurrent caller won the conditional update.
// Handlers should map this to HTTP 409.
var ErrConflict = errors.New("conflict")

// ErrAlreadyTaken is the Conflict raised when a worker tries to match a visit
// that is already assigned. errors.Is(ErrAlreadyTaken, ErrConflict) is true.
var ErrAlreadyTaken = fmt.Errorf("%w: visit is already taken", ErrConflict)

// ErrPaymentPrecondition is returned when the requester has no gateway
// customer or no default payment method on file.
// Handlers should map this to HTTP 412.
var ErrPaymentPrecondition = errors.New("payment precondition failed")

// ErrPaymentFailed is returned when the gateway declines or errors while
// authorizing a charge. Release is safe to retry after this error.
// Handlers should map this to HTTP 402.
var ErrPaymentFailed = errors.New("payment failed")

// ErrChargeRejected is returned by payment gateways when the processor
// definitely created no charge: a decline, or a request refused before it
// reached the processor. Any other gateway error leaves the outcome unknown.
var ErrChargeRejected = errors.New("charge rejected")
