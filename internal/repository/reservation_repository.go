package repository

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/lanekeep/venue-checkin/internal/model"
)

// ReservationRepo provides data access to the inventory_reservations
// table, the durable ledger of holds on rooms and lockers.  A row
// with released_at IS NULL is open; the engine enforces that at most
// one open row references a unit at any time.  All timestamp fields
// are assumed to be stored in UTC.
type ReservationRepo struct {
    db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `id, kind, waitlist_id, unit_id, expires_at, released_at, created_at`

func scanReservation(scan func(dest ...any) error) (*model.InventoryReservation, error) {
    var res model.InventoryReservation
    var released sql.NullTime
    if err := scan(
        &res.ID, &res.Kind, &res.WaitlistID, &res.UnitID,
        &res.ExpiresAt, &released, &res.CreatedAt,
    ); err != nil {
        return nil, err
    }
    if released.Valid {
        t := released.Time.UTC()
        res.ReleasedAt = &t
    }
    return &res, nil
}

// OpenByUnitTx returns the open (unreleased) reservation for a unit
// within an existing transaction, locking it with FOR UPDATE.  A nil
// reservation with a nil error means the unit has no open hold.
// Expiry is deliberately not filtered here: an expired-but-unreleased
// row still blocks the unit until the engine expires its owner, so
// callers always see the row and decide.
func (r *ReservationRepo) OpenByUnitTx(ctx context.Context, tx *sql.Tx, unitID uint64) (*model.InventoryReservation, error) {
    const q = `SELECT ` + reservationColumns + `
               FROM inventory_reservations
               WHERE unit_id = ? AND released_at IS NULL
               FOR UPDATE`
    res, err := scanReservation(tx.QueryRowContext(ctx, q, unitID).Scan)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, nil
    }
    if err != nil {
        return nil, err
    }
    return res, nil
}

// OpenByWaitlistTx returns the open reservation owned by a waitlist
// entry within an existing transaction, locking it with FOR UPDATE.
// A nil reservation with a nil error means the entry holds nothing.
func (r *ReservationRepo) OpenByWaitlistTx(ctx context.Context, tx *sql.Tx, waitlistID uint64) (*model.InventoryReservation, error) {
    const q = `SELECT ` + reservationColumns + `
               FROM inventory_reservations
               WHERE waitlist_id = ? AND released_at IS NULL
               FOR UPDATE`
    res, err := scanReservation(tx.QueryRowContext(ctx, q, waitlistID).Scan)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, nil
    }
    if err != nil {
        return nil, err
    }
    return res, nil
}

// CreateTx inserts a new reservation within the provided transaction
// and populates the generated ID on the record.  The caller must
// commit or roll back.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.InventoryReservation) error {
    const q = `INSERT INTO inventory_reservations (kind, waitlist_id, unit_id, expires_at)
               VALUES (?, ?, ?, ?)`
    result, err := tx.ExecContext(ctx, q,
        res.Kind, res.WaitlistID, res.UnitID, res.ExpiresAt.UTC().Format("2006-01-02 15:04:05"))
    if err != nil {
        return err
    }
    id, err := result.LastInsertId()
    if err != nil {
        return err
    }
    res.ID = uint64(id)
    return nil
}

// ExtendTx advances the expiry of an open reservation within the
// provided transaction.  Extending never shortens a hold; callers
// compute the new deadline before calling.
func (r *ReservationRepo) ExtendTx(ctx context.Context, tx *sql.Tx, id uint64, expiresAt time.Time) error {
    const q = `UPDATE inventory_reservations SET expires_at = ? WHERE id = ? AND released_at IS NULL`
    _, err := tx.ExecContext(ctx, q, expiresAt.UTC().Format("2006-01-02 15:04:05"), id)
    return err
}

// ReleaseTx closes a reservation by stamping released_at within the
// provided transaction.  Releasing an already-released row is a
// no-op so the lazy expiry path stays idempotent.
func (r *ReservationRepo) ReleaseTx(ctx context.Context, tx *sql.Tx, id uint64, releasedAt time.Time) error {
    const q = `UPDATE inventory_reservations SET released_at = ? WHERE id = ? AND released_at IS NULL`
    _, err := tx.ExecContext(ctx, q, releasedAt.UTC().Format("2006-01-02 15:04:05"), id)
    return err
}
