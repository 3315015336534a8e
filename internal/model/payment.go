package model

import "time"

// Payment intent statuses.
const (
    PaymentPending   = "PENDING"
    PaymentPaid      = "PAID"
    PaymentFailed    = "FAILED"
    PaymentCancelled = "CANCELLED"
)

// Charge types.
const (
    ChargeUpgradeFee = "UPGRADE_FEE"
)

// PaymentIntent tracks a fee awaiting confirmation from the payment
// terminal.  QuoteJSON stores the priced line items returned by the
// pricing collaborator verbatim; this service never interprets it
// beyond the total used to compute the fee.
//
// Fields:
//  ID            – primary key identifier.
//  Reference     – opaque reference handed to the payment terminal.
//  WaitlistID    – waitlist entry the fee was quoted for.
//  LaneSessionID – lane session the intent was opened from (nullable).
//  AmountCents   – fee amount in cents.
//  Status        – PENDING, PAID, FAILED or CANCELLED.
//  QuoteJSON     – opaque priced line items backing the amount.
//  CreatedAt     – creation timestamp.
//  UpdatedAt     – last update timestamp.
type PaymentIntent struct {
    ID            uint64    // payment_intents.id
    Reference     string    // payment_intents.reference
    WaitlistID    uint64    // payment_intents.waitlist_id
    LaneSessionID *string   // payment_intents.lane_session_id (nullable)
    AmountCents   uint32    // payment_intents.amount_cents
    Status        string    // payment_intents.status
    QuoteJSON     string    // payment_intents.quote_json
    CreatedAt     time.Time // payment_intents.created_at
    UpdatedAt     time.Time // payment_intents.updated_at
}

// Charge is an immutable ledger line recorded once a payment intent
// settles.  Rows are never updated or deleted.
//
// Fields:
//  ID              – primary key identifier.
//  Type            – charge type (UPGRADE_FEE).
//  AmountCents     – charged amount in cents.
//  PaymentIntentID – intent the charge settles.
//  CreatedAt       – creation timestamp.
type Charge struct {
    ID              uint64    // charges.id
    Type            string    // charges.type
    AmountCents     uint32    // charges.amount_cents
    PaymentIntentID uint64    // charges.payment_intent_id
    CreatedAt       time.Time // charges.created_at
}
