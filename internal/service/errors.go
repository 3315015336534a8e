package service

import "errors"

// Sentinel errors returned by the offer engine.  Handlers translate
// them into HTTP statuses: conflicts to 409, missing preconditions
// to 400, lookups to 404.

// ErrUnitAlreadyReserved is returned when the requested unit has an
// active hold owned by a different waitlist entry.
var ErrUnitAlreadyReserved = errors.New("unit already reserved")

// ErrWaitlistClosed is returned when the entry has already been
// closed (cancelled, or expired for actions that cannot revive it)
// and the requested action no longer applies.
var ErrWaitlistClosed = errors.New("waitlist entry closed")

// ErrNotOffered is returned when fulfillment is attempted on an
// entry that has no outstanding offer for the requested unit.
var ErrNotOffered = errors.New("no outstanding offer for unit")

// ErrOfferExpired is returned when the outstanding offer lapsed
// before the action could complete.  The entry has been moved to
// EXPIRED and its hold released as a side effect.
var ErrOfferExpired = errors.New("offer expired")

// ErrDisclaimerRequired is returned when fulfillment is attempted
// without the customer having acknowledged the upgrade disclaimer.
var ErrDisclaimerRequired = errors.New("disclaimer acknowledgment required")

// ErrPaymentNotConfirmed is returned when completion is attempted
// while the payment intent is not PAID.  Callers must re-check the
// payment status before retrying.
var ErrPaymentNotConfirmed = errors.New("payment not confirmed")

// ErrIntentMismatch is returned when completion is attempted with a
// payment intent that was opened for a different waitlist entry.
var ErrIntentMismatch = errors.New("payment intent belongs to another entry")

// ErrAlreadyFulfilled is returned when an already fulfilled entry is
// acted upon again.
var ErrAlreadyFulfilled = errors.New("waitlist entry already fulfilled")
