// Package realtime fans domain events out to the terminals
// subscribed to a lane.  Delivery is at-most-once best effort: there
// is no persistence or replay, so a terminal that reconnects must
// re-fetch authoritative state over HTTP and only then trust the
// socket for deltas.  Events are published only after the owning
// store transaction has committed.
package realtime

// Lane channel roles.  These name the two sides of a physical
// terminal pairing and are distinct from staff auth roles.
const (
    RoleCustomer = "customer"
    RoleEmployee = "employee"
)

// Event types pushed over lane channels.
const (
    EventRoomStatus        = "room.status"
    EventWaitlistOffered   = "waitlist.offered"
    EventWaitlistExpired   = "waitlist.expired"
    EventWaitlistCancelled = "waitlist.cancelled"
    EventUpgradeFulfilled  = "upgrade.fulfilled"
    EventUpgradeCompleted  = "upgrade.completed"
)

// Event is one domain notification scoped to a lane.  Roles selects
// which side of the lane receives it; an empty slice means both.
// The payload is marshalled as-is onto each subscribed socket.
type Event struct {
    Lane    string   `json:"lane"`
    Type    string   `json:"type"`
    Payload any      `json:"payload,omitempty"`
    Roles   []string `json:"-"`
}

// ValidRole reports whether s names a lane channel role.
func ValidRole(s string) bool {
    return s == RoleCustomer || s == RoleEmployee
}
