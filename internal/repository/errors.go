// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios. For
// example, ErrForbidden indicates that the current staff member is not
// authorized to perform an operation, while ErrConflict signals that
// an operation cannot proceed due to existing dependent records.
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation
// their role does not permit. Handlers should translate this into
// an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an update cannot be performed because
// of conflicting state, such as cancelling a waitlist entry that has
// already been fulfilled. Handlers should translate this into an
// HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrRoomNotFound is returned when a room or locker lookup finds no
// row. Handlers should translate this into an HTTP 404 response.
var ErrRoomNotFound = errors.New("room not found")

// ErrWaitlistNotFound is returned when a waitlist entry lookup finds
// no row.
var ErrWaitlistNotFound = errors.New("waitlist entry not found")

// ErrIntentNotFound is returned when a payment intent lookup finds
// no row.
var ErrIntentNotFound = errors.New("payment intent not found")

// ErrStaffNotFound is returned when a staff lookup by name finds no
// row. Login handlers should respond with a generic 401 rather than
// leaking whether the name exists.
var ErrStaffNotFound = errors.New("staff not found")

// ErrStaffExists is returned when provisioning a staff member whose
// display name is already taken.
var ErrStaffExists = errors.New("staff name already taken")
