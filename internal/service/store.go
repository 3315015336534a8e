package service

import (
    "context"
    "time"

    "github.com/lanekeep/venue-checkin/internal/model"
)

// Tx is the set of store operations the offer engine performs inside
// one transaction.  The production implementation wraps *sql.Tx in
// the repository package; tests substitute an in-memory store.
// Lookup methods that can miss return the repository sentinel errors
// (ErrWaitlistNotFound and friends); the open-reservation lookups
// return nil with a nil error when no open row exists.
type Tx interface {
    WaitlistByID(ctx context.Context, id uint64) (*model.WaitlistEntry, error)
    UpdateWaitlist(ctx context.Context, e *model.WaitlistEntry) error
    DueOfferedWaitlist(ctx context.Context, now time.Time) ([]*model.WaitlistEntry, error)

    RoomByID(ctx context.Context, id uint64) (*model.Room, error)
    UpdateRoomStatus(ctx context.Context, id uint64, status string) error

    OpenReservationByUnit(ctx context.Context, unitID uint64) (*model.InventoryReservation, error)
    OpenReservationByWaitlist(ctx context.Context, waitlistID uint64) (*model.InventoryReservation, error)
    CreateReservation(ctx context.Context, res *model.InventoryReservation) error
    ExtendReservation(ctx context.Context, id uint64, expiresAt time.Time) error
    ReleaseReservation(ctx context.Context, id uint64, releasedAt time.Time) error

    CreatePaymentIntent(ctx context.Context, p *model.PaymentIntent) error
    PaymentIntentByID(ctx context.Context, id uint64) (*model.PaymentIntent, error)
    CreateCharge(ctx context.Context, ch *model.Charge) error
}

// Store runs a function inside one serializable transaction.  When
// fn returns an error the transaction is rolled back and the error
// is returned unchanged, so no partial offer, charge or status state
// is ever observable.
type Store interface {
    Serializable(ctx context.Context, fn func(tx Tx) error) error
}
