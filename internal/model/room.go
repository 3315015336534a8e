package model

import "time"

// Room kinds.  SPECIAL rooms carry accessibility equipment and are
// offered only when explicitly requested.  LOCKER entries share the
// rooms table because they move through the same cleaning cycle.
const (
    RoomKindStandard = "STANDARD"
    RoomKindDeluxe   = "DELUXE"
    RoomKindSpecial  = "SPECIAL"
    RoomKindLocker   = "LOCKER"
)

// Room represents a physical inventory unit (room or locker).
// Status transitions are validated by the roomstate package and
// must never be written to the store directly by handlers.
//
// Fields:
//  ID        – primary key identifier.
//  Number    – human-facing unit number printed on the door.
//  Kind      – unit tier (STANDARD, DELUXE, SPECIAL, LOCKER).
//  Status    – cleaning-cycle status (DIRTY, CLEANING, CLEAN, OCCUPIED).
//  CreatedAt – timestamp when the record was created.
//  UpdatedAt – timestamp when the record was last updated.
type Room struct {
    ID        uint64    // rooms.id
    Number    string    // rooms.number
    Kind      string    // rooms.kind
    Status    string    // rooms.status
    CreatedAt time.Time // rooms.created_at
    UpdatedAt time.Time // rooms.updated_at
}
