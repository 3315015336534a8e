package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/lanekeep/venue-checkin/internal/model"
)

// PaymentRepo provides data access to the payment_intents and
// charges tables.  Intents move PENDING → PAID/FAILED/CANCELLED;
// charges are written once when an intent settles and are never
// updated afterwards.
type PaymentRepo struct {
    db *sql.DB
}

// NewPaymentRepo returns a new PaymentRepo bound to the given database.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

const intentColumns = `id, reference, waitlist_id, lane_session_id, amount_cents, status, quote_json, created_at, updated_at`

func scanIntent(scan func(dest ...any) error) (*model.PaymentIntent, error) {
    var p model.PaymentIntent
    var laneSession sql.NullString
    if err := scan(
        &p.ID, &p.Reference, &p.WaitlistID, &laneSession, &p.AmountCents,
        &p.Status, &p.QuoteJSON, &p.CreatedAt, &p.UpdatedAt,
    ); err != nil {
        return nil, err
    }
    if laneSession.Valid {
        s := laneSession.String
        p.LaneSessionID = &s
    }
    return &p, nil
}

// CreateIntentTx inserts a new payment intent within the provided
// transaction and populates the generated ID on the record.
func (r *PaymentRepo) CreateIntentTx(ctx context.Context, tx *sql.Tx, p *model.PaymentIntent) error {
    const q = `INSERT INTO payment_intents (reference, waitlist_id, lane_session_id, amount_cents, status, quote_json)
               VALUES (?, ?, ?, ?, ?, ?)`
    var laneSession any
    if p.LaneSessionID != nil {
        laneSession = *p.LaneSessionID
    }
    result, err := tx.ExecContext(ctx, q, p.Reference, p.WaitlistID, laneSession, p.AmountCents, p.Status, p.QuoteJSON)
    if err != nil {
        return err
    }
    id, err := result.LastInsertId()
    if err != nil {
        return err
    }
    p.ID = uint64(id)
    return nil
}

// GetIntentByID returns a single payment intent.  It returns
// ErrIntentNotFound when no row exists.
func (r *PaymentRepo) GetIntentByID(ctx context.Context, id uint64) (*model.PaymentIntent, error) {
    const q = `SELECT ` + intentColumns + ` FROM payment_intents WHERE id = ?`
    p, err := scanIntent(r.db.QueryRowContext(ctx, q, id).Scan)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrIntentNotFound
    }
    if err != nil {
        return nil, err
    }
    return p, nil
}

// GetIntentByIDTx is GetIntentByID within an existing transaction,
// locking the row with FOR UPDATE so a concurrent confirmation and
// completion serialize.
func (r *PaymentRepo) GetIntentByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.PaymentIntent, error) {
    const q = `SELECT ` + intentColumns + ` FROM payment_intents WHERE id = ? FOR UPDATE`
    p, err := scanIntent(tx.QueryRowContext(ctx, q, id).Scan)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrIntentNotFound
    }
    if err != nil {
        return nil, err
    }
    return p, nil
}

// UpdateIntentStatusTx moves an intent from one status to another
// within the provided transaction.  The expected current status
// guards the write; ErrConflict is returned when the row has moved
// on, so callers never clobber a settled intent.
func (r *PaymentRepo) UpdateIntentStatusTx(ctx context.Context, tx *sql.Tx, id uint64, from, to string) error {
    const q = `UPDATE payment_intents SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ? AND status = ?`
    res, err := tx.ExecContext(ctx, q, to, id, from)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrConflict
    }
    return nil
}

// CreateChargeTx records an immutable charge within the provided
// transaction and populates the generated ID on the record.
func (r *PaymentRepo) CreateChargeTx(ctx context.Context, tx *sql.Tx, ch *model.Charge) error {
    const q = `INSERT INTO charges (type, amount_cents, payment_intent_id) VALUES (?, ?, ?)`
    result, err := tx.ExecContext(ctx, q, ch.Type, ch.AmountCents, ch.PaymentIntentID)
    if err != nil {
        return err
    }
    id, err := result.LastInsertId()
    if err != nil {
        return err
    }
    ch.ID = uint64(id)
    return nil
}
