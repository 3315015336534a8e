// Package queue defines message payloads exchanged over the message broker.
package queue

// UpgradeCompletedEvent is published when an upgrade is paid and committed.
// It contains enough information for downstream consumers to log, notify, or
// trigger analytics without querying the primary database.
type UpgradeCompletedEvent struct {
    WaitlistID      uint64 `json:"waitlist_id"`
    VisitID         uint64 `json:"visit_id"`
    RoomID          uint64 `json:"room_id"`
    RoomNumber      string `json:"room_number"`
    RoomKind        string `json:"room_kind"`
    PaymentIntentID uint64 `json:"payment_intent_id"`
    LaneSessionID   string `json:"lane_session_id,omitempty"`
    FeeCents        uint32 `json:"fee_cents"`
    CompletedAt     string `json:"completed_at"`
}
