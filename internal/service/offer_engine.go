// Package service implements the waitlist offer engine: the timed
// inventory-reservation state machine that backs upgrade offers,
// fulfillment and completion.  All mutations run inside one
// serializable store transaction, so correctness under concurrent
// staff action comes from the store's isolation level rather than
// in-process locking.
package service

import (
    "context"
    "encoding/json"
    "fmt"
    "log"
    "time"

    "github.com/google/uuid"

    "github.com/lanekeep/venue-checkin/internal/model"
    "github.com/lanekeep/venue-checkin/internal/roomstate"
)

// DefaultOfferTTL is how long an offer stays open from the moment it
// is made or re-made.  Re-offering never shortens an outstanding
// offer; it advances the deadline to at least this far from now.
const DefaultOfferTTL = 10 * time.Minute

// OfferEngine manages the OFFERED window for waitlist entries and
// the reservation ledger holds that back them.  All app-level
// callers must go through the engine rather than writing waitlist or
// reservation rows directly.
type OfferEngine struct {
    store    Store
    pricer   Pricer
    offerTTL time.Duration
    now      func() time.Time
}

// NewOfferEngine constructs an engine with the default offer window.
func NewOfferEngine(store Store, pricer Pricer) *OfferEngine {
    return &OfferEngine{
        store:    store,
        pricer:   pricer,
        offerTTL: DefaultOfferTTL,
        now:      time.Now,
    }
}

// FulfillResult is returned by Fulfill for display at the register:
// the new payment intent plus the original charge breakdown the fee
// was diffed against.
type FulfillResult struct {
    PaymentIntentID    uint64
    Reference          string
    UpgradeFeeCents    uint32
    OriginalCharges    []QuoteLine
    OriginalTotalCents uint32
}

// CompleteResult is returned by Complete once the upgrade has been
// committed.
type CompleteResult struct {
    RoomID      uint64
    AmountCents uint32
}

// expireIfDue applies the lazy check-on-read expiry policy to an
// entry loaded in the current transaction.  When the offer deadline
// has passed it moves the entry to EXPIRED and releases its hold,
// returning true.  Every engine operation calls this before trusting
// an OFFERED status, so an expired offer is never acted on
// regardless of what the stored status still says.
func (g *OfferEngine) expireIfDue(ctx context.Context, tx Tx, e *model.WaitlistEntry) (bool, error) {
    if e.Status != model.WaitlistOffered || e.OfferExpiresAt == nil {
        return false, nil
    }
    now := g.now().UTC()
    if !now.After(*e.OfferExpiresAt) {
        return false, nil
    }
    if err := g.releaseHold(ctx, tx, e.ID, now); err != nil {
        return false, err
    }
    e.Status = model.WaitlistExpired
    if err := tx.UpdateWaitlist(ctx, e); err != nil {
        return false, err
    }
    return true, nil
}

// releaseHold releases the entry's open reservation if one exists.
func (g *OfferEngine) releaseHold(ctx context.Context, tx Tx, waitlistID uint64, now time.Time) error {
    res, err := tx.OpenReservationByWaitlist(ctx, waitlistID)
    if err != nil {
        return err
    }
    if res == nil {
        return nil
    }
    return tx.ReleaseReservation(ctx, res.ID, now)
}

// Offer proposes a unit to a waitlist entry, opening or refreshing
// the backing UPGRADE_HOLD reservation.  It is idempotent under
// repeated calls for the same unit: an existing hold is extended
// rather than recreated, and the deadline only ever moves forward.
// It returns the offer deadline.  ErrUnitAlreadyReserved is returned
// when another entry holds the unit.  An entry whose previous offer
// expired can be offered again; only fulfilled and cancelled entries
// are closed to new offers.
func (g *OfferEngine) Offer(ctx context.Context, waitlistID, unitID uint64) (time.Time, error) {
    var deadline time.Time
    err := g.store.Serializable(ctx, func(tx Tx) error {
        e, err := tx.WaitlistByID(ctx, waitlistID)
        if err != nil {
            return err
        }
        if _, err := g.expireIfDue(ctx, tx, e); err != nil {
            return err
        }
        // ACTIVE, OFFERED and EXPIRED entries can all receive an
        // offer: a lapsed offer is simply re-made.
        switch e.Status {
        case model.WaitlistFulfilled:
            return ErrAlreadyFulfilled
        case model.WaitlistCancelled:
            return ErrWaitlistClosed
        }
        if _, err := tx.RoomByID(ctx, unitID); err != nil {
            return err
        }
        now := g.now().UTC()
        open, err := tx.OpenReservationByUnit(ctx, unitID)
        if err != nil {
            return err
        }
        if open != nil && open.WaitlistID != waitlistID {
            if open.Active(now) {
                return ErrUnitAlreadyReserved
            }
            // The unit is blocked by a hold whose offer lapsed but
            // whose owner has not been read since.  Expire the owner
            // here so the unit frees up without waiting for that
            // entry's own lazy check.
            if err := g.expireOther(ctx, tx, open, now); err != nil {
                return err
            }
        }
        // Re-offering never shortens an outstanding offer: keep the
        // later of the existing deadline and now + TTL.
        deadline = now.Add(g.offerTTL)
        sameUnit := e.RoomID != nil && *e.RoomID == unitID
        if sameUnit && e.OfferExpiresAt != nil && e.OfferExpiresAt.After(deadline) {
            deadline = *e.OfferExpiresAt
        }

        own, err := tx.OpenReservationByWaitlist(ctx, waitlistID)
        if err != nil {
            return err
        }
        switch {
        case own != nil && own.UnitID == unitID:
            if err := tx.ExtendReservation(ctx, own.ID, deadline); err != nil {
                return err
            }
        case own != nil:
            // Offer moved to a different unit: release the old hold
            // before opening the new one so the one-open-hold-per-unit
            // invariant survives the switch.
            if err := tx.ReleaseReservation(ctx, own.ID, now); err != nil {
                return err
            }
            fallthrough
        default:
            res := &model.InventoryReservation{
                Kind:       model.ReservationKindUpgradeHold,
                WaitlistID: waitlistID,
                UnitID:     unitID,
                ExpiresAt:  deadline,
            }
            if err := tx.CreateReservation(ctx, res); err != nil {
                return err
            }
        }

        e.Status = model.WaitlistOffered
        e.RoomID = &unitID
        e.OfferExpiresAt = &deadline
        return tx.UpdateWaitlist(ctx, e)
    })
    if err != nil {
        return time.Time{}, err
    }
    return deadline, nil
}

// expireOther expires a different waitlist entry whose hold on a
// unit has lapsed, releasing the hold and moving the entry to
// EXPIRED inside the current transaction.
func (g *OfferEngine) expireOther(ctx context.Context, tx Tx, res *model.InventoryReservation, now time.Time) error {
    if err := tx.ReleaseReservation(ctx, res.ID, now); err != nil {
        return err
    }
    other, err := tx.WaitlistByID(ctx, res.WaitlistID)
    if err != nil {
        return err
    }
    if other.Status == model.WaitlistOffered {
        other.Status = model.WaitlistExpired
        if err := tx.UpdateWaitlist(ctx, other); err != nil {
            return err
        }
    }
    return nil
}

// Fulfill turns an outstanding offer into a pending upgrade payment.
// It requires the entry to be OFFERED for the given unit with a live
// hold, and the customer to have acknowledged the upgrade
// disclaimer.  The fee is the difference between a fresh quote for
// the new tier and the original quote recorded for the visit,
// floored at zero.  A PENDING payment intent is created for the fee;
// the unit's operational status is not yet touched.
func (g *OfferEngine) Fulfill(ctx context.Context, waitlistID, unitID uint64, acknowledgedDisclaimer bool, laneSessionID string) (*FulfillResult, error) {
    if !acknowledgedDisclaimer {
        return nil, ErrDisclaimerRequired
    }
    var out FulfillResult
    var lapsed bool
    err := g.store.Serializable(ctx, func(tx Tx) error {
        e, err := tx.WaitlistByID(ctx, waitlistID)
        if err != nil {
            return err
        }
        // A lapsed offer is expired here and the transaction commits
        // so the EXPIRED status persists; the caller still sees
        // ErrOfferExpired.
        if lapsed, err = g.expireIfDue(ctx, tx, e); err != nil {
            return err
        }
        if lapsed {
            return nil
        }
        if e.Status == model.WaitlistFulfilled {
            return ErrAlreadyFulfilled
        }
        if e.Status != model.WaitlistOffered || e.RoomID == nil || *e.RoomID != unitID {
            return ErrNotOffered
        }
        res, err := tx.OpenReservationByWaitlist(ctx, waitlistID)
        if err != nil {
            return err
        }
        now := g.now().UTC()
        if res == nil || res.UnitID != unitID || !res.Active(now) {
            return ErrOfferExpired
        }
        room, err := tx.RoomByID(ctx, unitID)
        if err != nil {
            return err
        }
        original, err := g.pricer.OriginalQuote(ctx, e.VisitID)
        if err != nil {
            return fmt.Errorf("pricing original quote: %w", err)
        }
        fresh, err := g.pricer.TierQuote(ctx, e.VisitID, room.Kind)
        if err != nil {
            return fmt.Errorf("pricing tier quote: %w", err)
        }
        // Fee floors at zero: a promotional rate change between
        // check-in and the upgrade never turns into a credit.
        var fee uint32
        if fresh.TotalCents > original.TotalCents {
            fee = fresh.TotalCents - original.TotalCents
        }
        quoteJSON, err := json.Marshal(fresh)
        if err != nil {
            return err
        }
        intent := &model.PaymentIntent{
            Reference:   uuid.NewString(),
            WaitlistID:  waitlistID,
            AmountCents: fee,
            Status:      model.PaymentPending,
            QuoteJSON:   string(quoteJSON),
        }
        if laneSessionID != "" {
            intent.LaneSessionID = &laneSessionID
        }
        if err := tx.CreatePaymentIntent(ctx, intent); err != nil {
            return err
        }
        out = FulfillResult{
            PaymentIntentID:    intent.ID,
            Reference:          intent.Reference,
            UpgradeFeeCents:    fee,
            OriginalCharges:    original.Lines,
            OriginalTotalCents: original.TotalCents,
        }
        return nil
    })
    if err != nil {
        return nil, err
    }
    if lapsed {
        return nil, ErrOfferExpired
    }
    return &out, nil
}

// Complete commits a fulfilled upgrade once its payment intent is
// PAID.  In one transaction it records the UPGRADE_FEE charge, marks
// the entry FULFILLED, releases the hold and moves the unit to
// OCCUPIED.  The intent must have been opened for this entry
// (ErrIntentMismatch otherwise); ErrPaymentNotConfirmed is returned
// while it is in any status other than PAID.
func (g *OfferEngine) Complete(ctx context.Context, waitlistID, paymentIntentID uint64) (*CompleteResult, error) {
    var out CompleteResult
    var lapsed bool
    err := g.store.Serializable(ctx, func(tx Tx) error {
        e, err := tx.WaitlistByID(ctx, waitlistID)
        if err != nil {
            return err
        }
        if lapsed, err = g.expireIfDue(ctx, tx, e); err != nil {
            return err
        }
        if lapsed {
            return nil
        }
        if e.Status == model.WaitlistFulfilled {
            return ErrAlreadyFulfilled
        }
        if e.Status != model.WaitlistOffered || e.RoomID == nil {
            return ErrNotOffered
        }
        intent, err := tx.PaymentIntentByID(ctx, paymentIntentID)
        if err != nil {
            return err
        }
        // The intent carries the entry it priced; a PAID intent from
        // another entry (say a zero-fee upgrade) must not settle this
        // one.
        if intent.WaitlistID != waitlistID {
            return ErrIntentMismatch
        }
        if intent.Status != model.PaymentPaid {
            return ErrPaymentNotConfirmed
        }
        res, err := tx.OpenReservationByWaitlist(ctx, waitlistID)
        if err != nil {
            return err
        }
        now := g.now().UTC()
        if res == nil || res.UnitID != *e.RoomID || !res.Active(now) {
            return ErrOfferExpired
        }
        charge := &model.Charge{
            Type:            model.ChargeUpgradeFee,
            AmountCents:     intent.AmountCents,
            PaymentIntentID: intent.ID,
        }
        if err := tx.CreateCharge(ctx, charge); err != nil {
            return err
        }
        e.Status = model.WaitlistFulfilled
        if err := tx.UpdateWaitlist(ctx, e); err != nil {
            return err
        }
        if err := tx.ReleaseReservation(ctx, res.ID, now); err != nil {
            return err
        }
        room, err := tx.RoomByID(ctx, *e.RoomID)
        if err != nil {
            return err
        }
        if err := roomstate.ValidateTransition(room.Status, roomstate.StatusOccupied, false); err != nil {
            if _, soft := err.(*roomstate.NeedsOverrideError); !soft {
                return err
            }
            // The fee has been charged, so the unit must seat the
            // customer even if housekeeping state lagged behind.
            log.Printf("offer-engine: forcing room %d from %s to OCCUPIED on paid upgrade (waitlist=%d)",
                room.ID, room.Status, waitlistID)
        }
        if err := tx.UpdateRoomStatus(ctx, room.ID, roomstate.StatusOccupied); err != nil {
            return err
        }
        out = CompleteResult{RoomID: room.ID, AmountCents: intent.AmountCents}
        return nil
    })
    if err != nil {
        return nil, err
    }
    if lapsed {
        return nil, ErrOfferExpired
    }
    return &out, nil
}

// Cancel withdraws a waitlist entry, releasing any open hold.  A
// fulfilled entry cannot be cancelled; an already expired or
// cancelled entry reports ErrWaitlistClosed.
func (g *OfferEngine) Cancel(ctx context.Context, waitlistID uint64) error {
    var lapsed bool
    err := g.store.Serializable(ctx, func(tx Tx) error {
        e, err := tx.WaitlistByID(ctx, waitlistID)
        if err != nil {
            return err
        }
        if lapsed, err = g.expireIfDue(ctx, tx, e); err != nil {
            return err
        }
        if lapsed {
            return nil
        }
        switch e.Status {
        case model.WaitlistFulfilled:
            return ErrAlreadyFulfilled
        case model.WaitlistExpired, model.WaitlistCancelled:
            return ErrWaitlistClosed
        }
        now := g.now().UTC()
        if err := g.releaseHold(ctx, tx, e.ID, now); err != nil {
            return err
        }
        e.Status = model.WaitlistCancelled
        return tx.UpdateWaitlist(ctx, e)
    })
    if err != nil {
        return err
    }
    if lapsed {
        return ErrWaitlistClosed
    }
    return nil
}

// ExpireDue sweeps every OFFERED entry whose deadline has passed,
// expiring them and releasing their holds.  The read surface calls
// this before listing so terminals never see a stale OFFERED row;
// correctness does not depend on it because every action re-checks
// expiry on read.  It returns the IDs of the entries that expired.
func (g *OfferEngine) ExpireDue(ctx context.Context) ([]uint64, error) {
    var expired []uint64
    err := g.store.Serializable(ctx, func(tx Tx) error {
        expired = expired[:0]
        now := g.now().UTC()
        due, err := tx.DueOfferedWaitlist(ctx, now)
        if err != nil {
            return err
        }
        for _, e := range due {
            if err := g.releaseHold(ctx, tx, e.ID, now); err != nil {
                return err
            }
            e.Status = model.WaitlistExpired
            if err := tx.UpdateWaitlist(ctx, e); err != nil {
                return err
            }
            expired = append(expired, e.ID)
        }
        return nil
    })
    if err != nil {
        return nil, err
    }
    return expired, nil
}
