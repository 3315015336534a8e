package model

import "time"

// Reservation kinds.  Only upgrade holds exist today; the kind
// column leaves room for maintenance or VIP holds later.
const (
    ReservationKindUpgradeHold = "UPGRADE_HOLD"
)

// InventoryReservation is a durable hold on a single unit.  A row
// with a nil ReleasedAt is active; at most one active row may
// reference a unit at any time, regardless of kind.  ExpiresAt is
// never earlier than the owning waitlist entry's OfferExpiresAt.
//
// Fields:
//  ID         – primary key identifier.
//  Kind       – hold kind (UPGRADE_HOLD).
//  WaitlistID – waitlist entry that owns the hold.
//  UnitID     – room or locker being held.
//  ExpiresAt  – when the hold lapses.
//  ReleasedAt – set when the hold is released; nil means active.
//  CreatedAt  – creation timestamp.
type InventoryReservation struct {
    ID         uint64     // inventory_reservations.id
    Kind       string     // inventory_reservations.kind
    WaitlistID uint64     // inventory_reservations.waitlist_id
    UnitID     uint64     // inventory_reservations.unit_id
    ExpiresAt  time.Time  // inventory_reservations.expires_at
    ReleasedAt *time.Time // inventory_reservations.released_at (nullable)
    CreatedAt  time.Time  // inventory_reservations.created_at
}

// Active reports whether the hold is live at the given instant:
// not released and not past its expiry.
func (r *InventoryReservation) Active(now time.Time) bool {
    return r.ReleasedAt == nil && now.Before(r.ExpiresAt)
}
