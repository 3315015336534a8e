package service

import "context"

// QuoteLine is a single priced line item as returned by the pricing
// collaborator.  The engine never computes line items, it only diffs
// totals.
type QuoteLine struct {
    Label       string `json:"label"`
    AmountCents uint32 `json:"amount_cents"`
}

// Quote is an opaque priced quote: line items plus their total.
type Quote struct {
    Lines      []QuoteLine `json:"lines"`
    TotalCents uint32      `json:"total_cents"`
}

// Pricer supplies quotes for a visit.  Pricing is an external
// collaborator; this service treats both quotes as black boxes and
// charges the difference of their totals on upgrade.
type Pricer interface {
    // OriginalQuote returns the quote recorded for the visit at
    // check-in time.
    OriginalQuote(ctx context.Context, visitID uint64) (Quote, error)
    // TierQuote prices the visit as if it had been checked in at the
    // given room tier.
    TierQuote(ctx context.Context, visitID uint64, tier string) (Quote, error)
}
