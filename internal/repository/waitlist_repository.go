package repository

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/lanekeep/venue-checkin/internal/model"
)

// WaitlistRepo provides data access to the waitlist table.  Entries
// are soft-deleted by status; rows are never removed.  All timestamp
// fields are assumed to be stored in UTC.  Offer and reservation
// writes must go through the service layer engine so the invariants
// between waitlist, inventory_reservations and rooms hold.
type WaitlistRepo struct {
    db *sql.DB
}

// NewWaitlistRepo returns a new WaitlistRepo bound to the given database.
func NewWaitlistRepo(db *sql.DB) *WaitlistRepo { return &WaitlistRepo{db: db} }

const waitlistColumns = `id, visit_id, checkin_block_id, desired_tier, backup_tier,
                         status, offer_expires_at, room_id, created_at, updated_at`

// scanEntry scans one waitlist row from the given row scanner.
func scanEntry(scan func(dest ...any) error) (*model.WaitlistEntry, error) {
    var e model.WaitlistEntry
    var offerExp sql.NullTime
    var roomID sql.NullInt64
    if err := scan(
        &e.ID, &e.VisitID, &e.CheckinBlockID, &e.DesiredTier, &e.BackupTier,
        &e.Status, &offerExp, &roomID, &e.CreatedAt, &e.UpdatedAt,
    ); err != nil {
        return nil, err
    }
    if offerExp.Valid {
        t := offerExp.Time.UTC()
        e.OfferExpiresAt = &t
    }
    if roomID.Valid {
        id := uint64(roomID.Int64)
        e.RoomID = &id
    }
    return &e, nil
}

// GetByID returns a single waitlist entry without locking, for read
// surfaces and event payloads built after a transaction has
// committed.  It returns ErrWaitlistNotFound when no row exists.
func (r *WaitlistRepo) GetByID(ctx context.Context, id uint64) (*model.WaitlistEntry, error) {
    const q = `SELECT ` + waitlistColumns + ` FROM waitlist WHERE id = ?`
    e, err := scanEntry(r.db.QueryRowContext(ctx, q, id).Scan)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrWaitlistNotFound
    }
    if err != nil {
        return nil, err
    }
    return e, nil
}

// GetByIDTx returns a single waitlist entry within an existing
// transaction, locking the row with FOR UPDATE so concurrent offer
// and fulfillment attempts on the same entry serialize.  It returns
// ErrWaitlistNotFound when no row exists.
func (r *WaitlistRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.WaitlistEntry, error) {
    const q = `SELECT ` + waitlistColumns + ` FROM waitlist WHERE id = ? FOR UPDATE`
    e, err := scanEntry(tx.QueryRowContext(ctx, q, id).Scan)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrWaitlistNotFound
    }
    if err != nil {
        return nil, err
    }
    return e, nil
}

// UpdateTx writes the mutable fields of an entry within the provided
// transaction.  The caller must have loaded the entry with
// GetByIDTx in the same transaction and is responsible for
// committing or rolling back.
func (r *WaitlistRepo) UpdateTx(ctx context.Context, tx *sql.Tx, e *model.WaitlistEntry) error {
    const q = `UPDATE waitlist
               SET status = ?, offer_expires_at = ?, room_id = ?, updated_at = UTC_TIMESTAMP()
               WHERE id = ?`
    var offerExp any
    if e.OfferExpiresAt != nil {
        offerExp = e.OfferExpiresAt.UTC().Format("2006-01-02 15:04:05")
    }
    var roomID any
    if e.RoomID != nil {
        roomID = *e.RoomID
    }
    res, err := tx.ExecContext(ctx, q, e.Status, offerExp, roomID, e.ID)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrWaitlistNotFound
    }
    return nil
}

// ListCurrent returns entries the register still cares about: every
// ACTIVE and OFFERED row, oldest first.  Callers must run the lazy
// expiry sweep through the engine before trusting OFFERED statuses
// in the result.
func (r *WaitlistRepo) ListCurrent(ctx context.Context) ([]model.WaitlistEntry, error) {
    const q = `SELECT ` + waitlistColumns + `
               FROM waitlist
               WHERE status IN ('ACTIVE', 'OFFERED')
               ORDER BY created_at`
    rows, err := r.db.QueryContext(ctx, q)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    entries := make([]model.WaitlistEntry, 0)
    for rows.Next() {
        e, err := scanEntry(rows.Scan)
        if err != nil {
            return nil, err
        }
        entries = append(entries, *e)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return entries, nil
}

// DueOfferedTx returns every OFFERED entry whose offer deadline has
// passed at the given instant, locking the rows with FOR UPDATE.
// The engine expires them and releases their holds in the same
// transaction.
func (r *WaitlistRepo) DueOfferedTx(ctx context.Context, tx *sql.Tx, now time.Time) ([]*model.WaitlistEntry, error) {
    const q = `SELECT ` + waitlistColumns + `
               FROM waitlist
               WHERE status = 'OFFERED' AND offer_expires_at <= ?
               FOR UPDATE`
    rows, err := tx.QueryContext(ctx, q, now.UTC().Format("2006-01-02 15:04:05"))
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var entries []*model.WaitlistEntry
    for rows.Next() {
        e, err := scanEntry(rows.Scan)
        if err != nil {
            return nil, err
        }
        entries = append(entries, e)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return entries, nil
}
