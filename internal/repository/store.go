package repository

import (
    "context"
    "database/sql"
    "time"

    "github.com/lanekeep/venue-checkin/internal/model"
    "github.com/lanekeep/venue-checkin/internal/service"
)

// SQLStore adapts the repositories to the offer engine's store
// interface.  Engine transactions run at the serializable isolation
// level; lost races on the same unit resolve through row locks and
// isolation rather than application locking.
type SQLStore struct {
    db           *sql.DB
    rooms        *RoomRepo
    waitlist     *WaitlistRepo
    reservations *ReservationRepo
    payments     *PaymentRepo
}

// NewSQLStore returns a store backed by the given database and
// repositories.
func NewSQLStore(db *sql.DB, rooms *RoomRepo, waitlist *WaitlistRepo, reservations *ReservationRepo, payments *PaymentRepo) *SQLStore {
    return &SQLStore{
        db:           db,
        rooms:        rooms,
        waitlist:     waitlist,
        reservations: reservations,
        payments:     payments,
    }
}

// Serializable runs fn inside one serializable transaction,
// committing when fn returns nil and rolling back otherwise.
func (s *SQLStore) Serializable(ctx context.Context, fn func(tx service.Tx) error) error {
    tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    if err := fn(&sqlTx{store: s, tx: tx}); err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

// sqlTx delegates each engine store operation to the matching
// repository Tx method.
type sqlTx struct {
    store *SQLStore
    tx    *sql.Tx
}

func (t *sqlTx) WaitlistByID(ctx context.Context, id uint64) (*model.WaitlistEntry, error) {
    return t.store.waitlist.GetByIDTx(ctx, t.tx, id)
}

func (t *sqlTx) UpdateWaitlist(ctx context.Context, e *model.WaitlistEntry) error {
    return t.store.waitlist.UpdateTx(ctx, t.tx, e)
}

func (t *sqlTx) DueOfferedWaitlist(ctx context.Context, now time.Time) ([]*model.WaitlistEntry, error) {
    return t.store.waitlist.DueOfferedTx(ctx, t.tx, now)
}

func (t *sqlTx) RoomByID(ctx context.Context, id uint64) (*model.Room, error) {
    return t.store.rooms.GetByIDTx(ctx, t.tx, id)
}

func (t *sqlTx) UpdateRoomStatus(ctx context.Context, id uint64, status string) error {
    return t.store.rooms.UpdateStatusTx(ctx, t.tx, id, status)
}

func (t *sqlTx) OpenReservationByUnit(ctx context.Context, unitID uint64) (*model.InventoryReservation, error) {
    return t.store.reservations.OpenByUnitTx(ctx, t.tx, unitID)
}

func (t *sqlTx) OpenReservationByWaitlist(ctx context.Context, waitlistID uint64) (*model.InventoryReservation, error) {
    return t.store.reservations.OpenByWaitlistTx(ctx, t.tx, waitlistID)
}

func (t *sqlTx) CreateReservation(ctx context.Context, res *model.InventoryReservation) error {
    return t.store.reservations.CreateTx(ctx, t.tx, res)
}

func (t *sqlTx) ExtendReservation(ctx context.Context, id uint64, expiresAt time.Time) error {
    return t.store.reservations.ExtendTx(ctx, t.tx, id, expiresAt)
}

func (t *sqlTx) ReleaseReservation(ctx context.Context, id uint64, releasedAt time.Time) error {
    return t.store.reservations.ReleaseTx(ctx, t.tx, id, releasedAt)
}

func (t *sqlTx) CreatePaymentIntent(ctx context.Context, p *model.PaymentIntent) error {
    return t.store.payments.CreateIntentTx(ctx, t.tx, p)
}

func (t *sqlTx) PaymentIntentByID(ctx context.Context, id uint64) (*model.PaymentIntent, error) {
    return t.store.payments.GetIntentByIDTx(ctx, t.tx, id)
}

func (t *sqlTx) CreateCharge(ctx context.Context, ch *model.Charge) error {
    return t.store.payments.CreateChargeTx(ctx, t.tx, ch)
}

// compile-time check that sqlTx satisfies the engine interface.
var _ service.Tx = (*sqlTx)(nil)
var _ service.Store = (*SQLStore)(nil)
