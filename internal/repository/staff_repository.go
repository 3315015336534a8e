package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/lanekeep/venue-checkin/internal/model"
)

// StaffRepo provides access to the staff table.  Rows are created by
// managers through the provisioning endpoint and authenticated
// against on login.
type StaffRepo struct {
    db *sql.DB
}

// NewStaffRepo returns a new StaffRepo bound to the given database.
func NewStaffRepo(db *sql.DB) *StaffRepo { return &StaffRepo{db: db} }

// Create inserts a new staff member and populates the generated ID.
// It returns ErrStaffExists when the display name is already taken.
func (r *StaffRepo) Create(ctx context.Context, s *model.Staff) error {
    const dup = `SELECT id FROM staff WHERE name = ?`
    var existing uint64
    err := r.db.QueryRowContext(ctx, dup, s.Name).Scan(&existing)
    if err == nil {
        return ErrStaffExists
    }
    if !errors.Is(err, sql.ErrNoRows) {
        return err
    }

    const q = `INSERT INTO staff (name, role, pin_hash) VALUES (?, ?, ?)`
    result, err := r.db.ExecContext(ctx, q, s.Name, s.Role, s.PinHash)
    if err != nil {
        return err
    }
    id, err := result.LastInsertId()
    if err != nil {
        return err
    }
    s.ID = uint64(id)
    return nil
}

// GetByName returns the staff member with the given display name.
// It returns ErrStaffNotFound when no row exists.
func (r *StaffRepo) GetByName(ctx context.Context, name string) (*model.Staff, error) {
    const q = `SELECT id, name, role, pin_hash, created_at FROM staff WHERE name = ?`
    var s model.Staff
    err := r.db.QueryRowContext(ctx, q, name).Scan(&s.ID, &s.Name, &s.Role, &s.PinHash, &s.CreatedAt)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrStaffNotFound
    }
    if err != nil {
        return nil, err
    }
    return &s, nil
}

// GetByID returns the staff member with the given ID.  It returns
// ErrStaffNotFound when no row exists.
func (r *StaffRepo) GetByID(ctx context.Context, id uint64) (*model.Staff, error) {
    const q = `SELECT id, name, role, pin_hash, created_at FROM staff WHERE id = ?`
    var s model.Staff
    err := r.db.QueryRowContext(ctx, q, id).Scan(&s.ID, &s.Name, &s.Role, &s.PinHash, &s.CreatedAt)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrStaffNotFound
    }
    if err != nil {
        return nil, err
    }
    return &s, nil
}
