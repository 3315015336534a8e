package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/lanekeep/venue-checkin/internal/model"
)

// RoomRepo provides data access to the rooms table.  Rooms and
// lockers share the table; the kind column distinguishes them.  All
// timestamp fields are assumed to be stored in UTC.  Status writes
// must be validated through the roomstate package before they reach
// this repository.
type RoomRepo struct {
    db *sql.DB
}

// NewRoomRepo returns a new RoomRepo bound to the given database.
func NewRoomRepo(db *sql.DB) *RoomRepo { return &RoomRepo{db: db} }

// List returns every room and locker ordered by unit number.  The
// room board endpoint serves this directly; it is the authoritative
// state a terminal re-fetches after a reconnect.
func (r *RoomRepo) List(ctx context.Context) ([]model.Room, error) {
    const q = `SELECT id, number, kind, status, created_at, updated_at
               FROM rooms
               ORDER BY number`
    rows, err := r.db.QueryContext(ctx, q)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    units := make([]model.Room, 0)
    for rows.Next() {
        var u model.Room
        if err := rows.Scan(&u.ID, &u.Number, &u.Kind, &u.Status, &u.CreatedAt, &u.UpdatedAt); err != nil {
            return nil, err
        }
        units = append(units, u)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return units, nil
}

// GetByID returns a single room by its primary key.  It returns
// ErrRoomNotFound when no row exists.
func (r *RoomRepo) GetByID(ctx context.Context, id uint64) (*model.Room, error) {
    const q = `SELECT id, number, kind, status, created_at, updated_at FROM rooms WHERE id = ?`
    var u model.Room
    err := r.db.QueryRowContext(ctx, q, id).Scan(&u.ID, &u.Number, &u.Kind, &u.Status, &u.CreatedAt, &u.UpdatedAt)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrRoomNotFound
    }
    if err != nil {
        return nil, err
    }
    return &u, nil
}

// GetByIDTx is GetByID within an existing transaction.  The row is
// locked with FOR UPDATE so a concurrent status write on the same
// unit serializes behind the caller's transaction.
func (r *RoomRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Room, error) {
    const q = `SELECT id, number, kind, status, created_at, updated_at FROM rooms WHERE id = ? FOR UPDATE`
    var u model.Room
    err := tx.QueryRowContext(ctx, q, id).Scan(&u.ID, &u.Number, &u.Kind, &u.Status, &u.CreatedAt, &u.UpdatedAt)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrRoomNotFound
    }
    if err != nil {
        return nil, err
    }
    return &u, nil
}

// UpdateStatusTx writes a new status for a unit within the provided
// transaction.  The caller must have validated the transition and is
// responsible for committing or rolling back.
func (r *RoomRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status string) error {
    const q = `UPDATE rooms SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`
    res, err := tx.ExecContext(ctx, q, status, id)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrRoomNotFound
    }
    return nil
}
