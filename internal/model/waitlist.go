package model

import "time"

// Waitlist entry statuses.  An entry is soft-deleted by moving to
// FULFILLED, EXPIRED or CANCELLED; rows are never removed so the
// back office can audit offer history.
const (
    WaitlistActive    = "ACTIVE"
    WaitlistOffered   = "OFFERED"
    WaitlistFulfilled = "FULFILLED"
    WaitlistExpired   = "EXPIRED"
    WaitlistCancelled = "CANCELLED"
)

// WaitlistEntry records a visit waiting for a more desirable room
// tier than what was available at check-in.  While OFFERED, the
// entry owns exactly one active upgrade hold on the offered room
// and OfferExpiresAt is non-nil.
//
// Fields:
//  ID             – primary key identifier.
//  VisitID        – visit that requested the upgrade.
//  CheckinBlockID – occupancy interval the upgrade applies to.
//  DesiredTier    – room kind the customer is waiting for.
//  BackupTier     – kind the customer was seated at meanwhile.
//  Status         – lifecycle status (see constants above).
//  OfferExpiresAt – deadline of the outstanding offer, nil unless OFFERED.
//  RoomID         – offered room, nil until an offer is made.
//  CreatedAt      – creation timestamp.
//  UpdatedAt      – last update timestamp.
type WaitlistEntry struct {
    ID             uint64     // waitlist.id
    VisitID        uint64     // waitlist.visit_id
    CheckinBlockID uint64     // waitlist.checkin_block_id
    DesiredTier    string     // waitlist.desired_tier
    BackupTier     string     // waitlist.backup_tier
    Status         string     // waitlist.status
    OfferExpiresAt *time.Time // waitlist.offer_expires_at (nullable)
    RoomID         *uint64    // waitlist.room_id (nullable)
    CreatedAt      time.Time  // waitlist.created_at
    UpdatedAt      time.Time  // waitlist.updated_at
}
