package service

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/lanekeep/venue-checkin/internal/model"
    "github.com/lanekeep/venue-checkin/internal/roomstate"
)

// The engine treats store lookup failures as opaque and surfaces them
// unchanged, so the in-memory store uses its own sentinels.
var (
    errNoSuchEntry  = errors.New("waitlist entry not found")
    errNoSuchRoom   = errors.New("room not found")
    errNoSuchIntent = errors.New("payment intent not found")
)

// memStore is an in-memory Store for engine tests.  A mutex makes
// every transaction serializable; a deep snapshot taken before fn
// runs gives rollback-on-error the same all-or-nothing behavior the
// SQL store has.
type memStore struct {
    mu           sync.Mutex
    nextID       uint64
    waitlist     map[uint64]model.WaitlistEntry
    rooms        map[uint64]model.Room
    reservations map[uint64]model.InventoryReservation
    intents      map[uint64]model.PaymentIntent
    charges      []model.Charge
}

func newMemStore() *memStore {
    return &memStore{
        waitlist:     make(map[uint64]model.WaitlistEntry),
        rooms:        make(map[uint64]model.Room),
        reservations: make(map[uint64]model.InventoryReservation),
        intents:      make(map[uint64]model.PaymentIntent),
    }
}

func (s *memStore) Serializable(ctx context.Context, fn func(tx Tx) error) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    snap := s.snapshot()
    if err := fn(&memTx{s: s}); err != nil {
        s.restore(snap)
        return err
    }
    return nil
}

func (s *memStore) snapshot() *memStore {
    snap := newMemStore()
    snap.nextID = s.nextID
    for k, v := range s.waitlist {
        snap.waitlist[k] = v
    }
    for k, v := range s.rooms {
        snap.rooms[k] = v
    }
    for k, v := range s.reservations {
        snap.reservations[k] = v
    }
    for k, v := range s.intents {
        snap.intents[k] = v
    }
    snap.charges = append([]model.Charge(nil), s.charges...)
    return snap
}

func (s *memStore) restore(snap *memStore) {
    s.nextID = snap.nextID
    s.waitlist = snap.waitlist
    s.rooms = snap.rooms
    s.reservations = snap.reservations
    s.intents = snap.intents
    s.charges = snap.charges
}

func (s *memStore) id() uint64 {
    s.nextID++
    return s.nextID
}

// seeding helpers run outside transactions; tests call them during
// setup only.

func (s *memStore) addRoom(kind, status string) uint64 {
    id := s.id()
    s.rooms[id] = model.Room{ID: id, Number: fmt.Sprintf("%03d", id), Kind: kind, Status: status}
    return id
}

func (s *memStore) addEntry(desired string) uint64 {
    id := s.id()
    s.waitlist[id] = model.WaitlistEntry{
        ID: id, VisitID: id + 1000, CheckinBlockID: id + 2000,
        DesiredTier: desired, BackupTier: model.RoomKindStandard,
        Status: model.WaitlistActive,
    }
    return id
}

// openReservations counts unreleased holds on a unit.
func (s *memStore) openReservations(unitID uint64) int {
    n := 0
    for _, r := range s.reservations {
        if r.UnitID == unitID && r.ReleasedAt == nil {
            n++
        }
    }
    return n
}

type memTx struct {
    s *memStore
}

func (t *memTx) WaitlistByID(_ context.Context, id uint64) (*model.WaitlistEntry, error) {
    e, ok := t.s.waitlist[id]
    if !ok {
        return nil, errNoSuchEntry
    }
    cp := e
    return &cp, nil
}

func (t *memTx) UpdateWaitlist(_ context.Context, e *model.WaitlistEntry) error {
    if _, ok := t.s.waitlist[e.ID]; !ok {
        return errNoSuchEntry
    }
    t.s.waitlist[e.ID] = *e
    return nil
}

func (t *memTx) DueOfferedWaitlist(_ context.Context, now time.Time) ([]*model.WaitlistEntry, error) {
    var due []*model.WaitlistEntry
    for _, e := range t.s.waitlist {
        if e.Status == model.WaitlistOffered && e.OfferExpiresAt != nil && !now.Before(*e.OfferExpiresAt) {
            cp := e
            due = append(due, &cp)
        }
    }
    return due, nil
}

func (t *memTx) RoomByID(_ context.Context, id uint64) (*model.Room, error) {
    r, ok := t.s.rooms[id]
    if !ok {
        return nil, errNoSuchRoom
    }
    cp := r
    return &cp, nil
}

func (t *memTx) UpdateRoomStatus(_ context.Context, id uint64, status string) error {
    r, ok := t.s.rooms[id]
    if !ok {
        return errNoSuchRoom
    }
    r.Status = status
    t.s.rooms[id] = r
    return nil
}

func (t *memTx) OpenReservationByUnit(_ context.Context, unitID uint64) (*model.InventoryReservation, error) {
    for _, r := range t.s.reservations {
        if r.UnitID == unitID && r.ReleasedAt == nil {
            cp := r
            return &cp, nil
        }
    }
    return nil, nil
}

func (t *memTx) OpenReservationByWaitlist(_ context.Context, waitlistID uint64) (*model.InventoryReservation, error) {
    for _, r := range t.s.reservations {
        if r.WaitlistID == waitlistID && r.ReleasedAt == nil {
            cp := r
            return &cp, nil
        }
    }
    return nil, nil
}

func (t *memTx) CreateReservation(_ context.Context, res *model.InventoryReservation) error {
    res.ID = t.s.id()
    t.s.reservations[res.ID] = *res
    return nil
}

func (t *memTx) ExtendReservation(_ context.Context, id uint64, expiresAt time.Time) error {
    r, ok := t.s.reservations[id]
    if !ok || r.ReleasedAt != nil {
        return nil
    }
    r.ExpiresAt = expiresAt
    t.s.reservations[id] = r
    return nil
}

func (t *memTx) ReleaseReservation(_ context.Context, id uint64, releasedAt time.Time) error {
    r, ok := t.s.reservations[id]
    if !ok || r.ReleasedAt != nil {
        return nil
    }
    rel := releasedAt
    r.ReleasedAt = &rel
    t.s.reservations[id] = r
    return nil
}

func (t *memTx) CreatePaymentIntent(_ context.Context, p *model.PaymentIntent) error {
    p.ID = t.s.id()
    t.s.intents[p.ID] = *p
    return nil
}

func (t *memTx) PaymentIntentByID(_ context.Context, id uint64) (*model.PaymentIntent, error) {
    p, ok := t.s.intents[id]
    if !ok {
        return nil, errNoSuchIntent
    }
    cp := p
    return &cp, nil
}

func (t *memTx) CreateCharge(_ context.Context, ch *model.Charge) error {
    ch.ID = t.s.id()
    t.s.charges = append(t.s.charges, *ch)
    return nil
}

// stubPricer returns canned quotes.
type stubPricer struct {
    original Quote
    tiers    map[string]Quote
}

func (p *stubPricer) OriginalQuote(context.Context, uint64) (Quote, error) {
    return p.original, nil
}

func (p *stubPricer) TierQuote(_ context.Context, _ uint64, tier string) (Quote, error) {
    return p.tiers[tier], nil
}

// testClock is an adjustable clock for the engine.
type testClock struct {
    mu  sync.Mutex
    now time.Time
}

func (c *testClock) Now() time.Time {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.now
}

func (c *testClock) Advance(d time.Duration) {
    c.mu.Lock()
    c.now = c.now.Add(d)
    c.mu.Unlock()
}

func newTestEngine(store *memStore) (*OfferEngine, *testClock) {
    clk := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
    pricer := &stubPricer{
        original: Quote{
            Lines:      []QuoteLine{{Label: "standard room", AmountCents: 4000}, {Label: "towel set", AmountCents: 1000}},
            TotalCents: 5000,
        },
        tiers: map[string]Quote{
            model.RoomKindDeluxe:   {Lines: []QuoteLine{{Label: "deluxe room", AmountCents: 6500}}, TotalCents: 6500},
            model.RoomKindStandard: {Lines: []QuoteLine{{Label: "standard room", AmountCents: 4000}}, TotalCents: 4000},
        },
    }
    eng := NewOfferEngine(store, pricer)
    eng.now = clk.Now
    return eng, clk
}

func TestOfferOpensHoldAndSetsDeadline(t *testing.T) {
    store := newMemStore()
    eng, clk := newTestEngine(store)
    room := store.addRoom(model.RoomKindDeluxe, roomstate.StatusClean)
    entry := store.addEntry(model.RoomKindDeluxe)

    deadline, err := eng.Offer(context.Background(), entry, room)
    require.NoError(t, err)
    assert.Equal(t, clk.Now().Add(10*time.Minute), deadline)

    e := store.waitlist[entry]
    require.Equal(t, model.WaitlistOffered, e.Status)
    require.NotNil(t, e.OfferExpiresAt)
    assert.Equal(t, deadline, *e.OfferExpiresAt)
    require.NotNil(t, e.RoomID)
    assert.Equal(t, room, *e.RoomID)

    assert.Equal(t, 1, store.openReservations(room))
    for _, r := range store.reservations {
        assert.Equal(t, model.ReservationKindUpgradeHold, r.Kind)
        assert.Equal(t, deadline, r.ExpiresAt, "hold expiry matches the offer deadline")
    }
}

func TestReofferNeverShortensTheWindow(t *testing.T) {
    store := newMemStore()
    eng, clk := newTestEngine(store)
    room := store.addRoom(model.RoomKindDeluxe, roomstate.StatusClean)
    entry := store.addEntry(model.RoomKindDeluxe)
    ctx := context.Background()

    first, err := eng.Offer(ctx, entry, room)
    require.NoError(t, err)

    clk.Advance(1 * time.Minute)
    second, err := eng.Offer(ctx, entry, room)
    require.NoError(t, err)
    assert.True(t, second.After(first), "re-offer advances the deadline")
    assert.Equal(t, clk.Now().Add(10*time.Minute), second)

    // Force the window down to two minutes, as if the deadline had
    // nearly run out, and re-offer: the floor is restored.
    short := clk.Now().Add(2 * time.Minute)
    e := store.waitlist[entry]
    e.OfferExpiresAt = &short
    store.waitlist[entry] = e

    third, err := eng.Offer(ctx, entry, room)
    require.NoError(t, err)
    assert.False(t, third.Before(clk.Now().Add(10*time.Minute)))

    // Idempotent: still exactly one open hold on the unit.
    assert.Equal(t, 1, store.openReservations(room))
}

func TestOfferConflictsOnHeldUnit(t *testing.T) {
    store := newMemStore()
    eng, _ := newTestEngine(store)
    room := store.addRoom(model.RoomKindDeluxe, roomstate.StatusClean)
    a := store.addEntry(model.RoomKindDeluxe)
    b := store.addEntry(model.RoomKindDeluxe)
    ctx := context.Background()

    _, err := eng.Offer(ctx, a, room)
    require.NoError(t, err)

    _, err = eng.Offer(ctx, b, room)
    assert.ErrorIs(t, err, ErrUnitAlreadyReserved)

    e := store.waitlist[b]
    assert.Equal(t, model.WaitlistActive, e.Status, "loser is untouched")
    assert.Equal(t, 1, store.openReservations(room))
}

func TestConcurrentOffersSingleWinner(t *testing.T) {
    store := newMemStore()
    eng, _ := newTestEngine(store)
    room := store.addRoom(model.RoomKindDeluxe, roomstate.StatusClean)
    entries := make([]uint64, 8)
    for i := range entries {
        entries[i] = store.addEntry(model.RoomKindDeluxe)
    }

    var wg sync.WaitGroup
    results := make([]error, len(entries))
    for i, id := range entries {
        wg.Add(1)
        go func(i int, id uint64) {
            defer wg.Done()
            _, results[i] = eng.Offer(context.Background(), id, room)
        }(i, id)
    }
    wg.Wait()

    wins := 0
    for _, err := range results {
        if err == nil {
            wins++
        } else {
            assert.ErrorIs(t, err, ErrUnitAlreadyReserved)
        }
    }
    assert.Equal(t, 1, wins, "exactly one entry wins the unit")
    assert.Equal(t, 1, store.openReservations(room))
}

func TestOfferMovesToDifferentUnit(t *testing.T) {
    store := newMemStore()
    eng, _ := newTestEngine(store)
    roomA := store.addRoom(model.RoomKindDeluxe, roomstate.StatusClean)
    roomB := store.addRoom(model.RoomKindDeluxe, roomstate.StatusClean)
    entry := store.addEntry(model.RoomKindDeluxe)
    ctx := context.Background()

    _, err := eng.Offer(ctx, entry, roomA)
    require.NoError(t, err)
    _, err = eng.Offer(ctx, entry, roomB)
    require.NoError(t, err)

    assert.Equal(t, 0, store.openReservations(roomA), "old hold released on switch")
    assert.Equal(t, 1, store.openReservations(roomB))
    e := store.waitlist[entry]
    require.NotNil(t, e.RoomID)
    assert.Equal(t, roomB, *e.RoomID)
}

func TestFulfillRequiresDisclaimer(t *testing.T) {
    store := newMemStore()
    eng, _ := newTestEngine(store)
    room := store.addRoom(model.RoomKindDeluxe, roomstate.StatusClean)
    entry := store.addEntry(model.RoomKindDeluxe)
    ctx := context.Background()

    _, err := eng.Offer(ctx, entry, room)
    require.NoError(t, err)

    _, err = eng.Fulfill(ctx, entry, room, false, "")
    assert.ErrorIs(t, err, ErrDisclaimerRequired)
    assert.Empty(t, store.intents, "no intent is opened without the acknowledgment")
}

func TestFulfillThenCompleteCommitsUpgrade(t *testing.T) {
    store := newMemStore()
    eng, _ := newTestEngine(store)
    room := store.addRoom(model.RoomKindDeluxe, roomstate.StatusClean)
    entry := store.addEntry(model.RoomKindDeluxe)
    ctx := context.Background()

    _, err := eng.Offer(ctx, entry, room)
    require.NoError(t, err)

    res, err := eng.Fulfill(ctx, entry, room, true, "lane-1:employee")
    require.NoError(t, err)
    assert.Equal(t, uint32(1500), res.UpgradeFeeCents, "fee is the quote delta")
    assert.Equal(t, uint32(5000), res.OriginalTotalCents)
    assert.Len(t, res.OriginalCharges, 2)
    require.NotEmpty(t, res.Reference)

    intent := store.intents[res.PaymentIntentID]
    assert.Equal(t, model.PaymentPending, intent.Status)
    assert.Equal(t, uint32(1500), intent.AmountCents)
    assert.Equal(t, entry, intent.WaitlistID, "intent is bound to the entry it priced")
    require.NotNil(t, intent.LaneSessionID)
    assert.Equal(t, "lane-1:employee", *intent.LaneSessionID)

    // Completion before payment confirmation is refused.
    _, err = eng.Complete(ctx, entry, res.PaymentIntentID)
    assert.ErrorIs(t, err, ErrPaymentNotConfirmed)

    intent.Status = model.PaymentPaid
    store.intents[res.PaymentIntentID] = intent

    done, err := eng.Complete(ctx, entry, res.PaymentIntentID)
    require.NoError(t, err)
    assert.Equal(t, room, done.RoomID)
    assert.Equal(t, uint32(1500), done.AmountCents)

    require.Len(t, store.charges, 1)
    assert.Equal(t, model.ChargeUpgradeFee, store.charges[0].Type)
    assert.Equal(t, res.UpgradeFeeCents, store.charges[0].AmountCents)
    assert.Equal(t, res.PaymentIntentID, store.charges[0].PaymentIntentID)

    assert.Equal(t, model.WaitlistFulfilled, store.waitlist[entry].Status)
    assert.Equal(t, roomstate.StatusOccupied, store.rooms[room].Status)
    assert.Equal(t, 0, store.openReservations(room), "hold released on completion")

    // Completing twice is refused.
    _, err = eng.Complete(ctx, entry, res.PaymentIntentID)
    assert.ErrorIs(t, err, ErrAlreadyFulfilled)
    assert.Len(t, store.charges, 1, "no duplicate charge")
}

func TestCompleteRejectsForeignIntent(t *testing.T) {
    store := newMemStore()
    eng, _ := newTestEngine(store)
    roomA := store.addRoom(model.RoomKindDeluxe, roomstate.StatusClean)
    roomB := store.addRoom(model.RoomKindStandard, roomstate.StatusClean)
    entryA := store.addEntry(model.RoomKindDeluxe)
    entryB := store.addEntry(model.RoomKindStandard)
    ctx := context.Background()

    _, err := eng.Offer(ctx, entryA, roomA)
    require.NoError(t, err)
    _, err = eng.Offer(ctx, entryB, roomB)
    require.NoError(t, err)

    resA, err := eng.Fulfill(ctx, entryA, roomA, true, "")
    require.NoError(t, err)
    resB, err := eng.Fulfill(ctx, entryB, roomB, true, "")
    require.NoError(t, err)
    assert.Equal(t, uint32(0), resB.UpgradeFeeCents)

    // Paying B's zero-fee intent must not settle A's offer.
    paid := store.intents[resB.PaymentIntentID]
    paid.Status = model.PaymentPaid
    store.intents[resB.PaymentIntentID] = paid

    _, err = eng.Complete(ctx, entryA, resB.PaymentIntentID)
    assert.ErrorIs(t, err, ErrIntentMismatch)
    assert.Equal(t, model.WaitlistOffered, store.waitlist[entryA].Status)
    assert.Empty(t, store.charges)
    assert.Equal(t, 1, store.openReservations(roomA), "hold on A survives the refusal")

    // B itself still completes with its own intent.
    done, err := eng.Complete(ctx, entryB, resB.PaymentIntentID)
    require.NoError(t, err)
    assert.Equal(t, roomB, done.RoomID)

    // And B's settled intent is no substitute for paying A's.
    _, err = eng.Complete(ctx, entryA, resA.PaymentIntentID)
    assert.ErrorIs(t, err, ErrPaymentNotConfirmed)
}

func TestUpgradeFeeFloorsAtZero(t *testing.T) {
    store := newMemStore()
    eng, _ := newTestEngine(store)
    // Offer a downgrade-priced tier: fresh quote below the original.
    room := store.addRoom(model.RoomKindStandard, roomstate.StatusClean)
    entry := store.addEntry(model.RoomKindStandard)
    ctx := context.Background()

    _, err := eng.Offer(ctx, entry, room)
    require.NoError(t, err)
    res, err := eng.Fulfill(ctx, entry, room, true, "")
    require.NoError(t, err)
    assert.Equal(t, uint32(0), res.UpgradeFeeCents, "rate drops never turn into credits")
}

func TestExpiredOfferCannotBeActedOn(t *testing.T) {
    store := newMemStore()
    eng, clk := newTestEngine(store)
    room := store.addRoom(model.RoomKindDeluxe, roomstate.StatusClean)
    entry := store.addEntry(model.RoomKindDeluxe)
    other := store.addEntry(model.RoomKindDeluxe)
    ctx := context.Background()

    _, err := eng.Offer(ctx, entry, room)
    require.NoError(t, err)

    clk.Advance(11 * time.Minute)

    _, err = eng.Fulfill(ctx, entry, room, true, "")
    assert.ErrorIs(t, err, ErrOfferExpired)
    assert.Equal(t, model.WaitlistExpired, store.waitlist[entry].Status, "expiry persists even though fulfill failed")
    assert.Equal(t, 0, store.openReservations(room), "stale hold released")

    // A lapsed entry can be offered the same unit again.
    deadline, err := eng.Offer(ctx, entry, room)
    require.NoError(t, err)
    assert.Equal(t, clk.Now().Add(10*time.Minute), deadline)
    assert.Equal(t, model.WaitlistOffered, store.waitlist[entry].Status)
    assert.Equal(t, 1, store.openReservations(room))

    // And the unit stays guarded against everyone else.
    _, err = eng.Offer(ctx, other, room)
    assert.ErrorIs(t, err, ErrUnitAlreadyReserved)
}

func TestOfferFreesUnitBlockedByLapsedHold(t *testing.T) {
    store := newMemStore()
    eng, clk := newTestEngine(store)
    room := store.addRoom(model.RoomKindDeluxe, roomstate.StatusClean)
    a := store.addEntry(model.RoomKindDeluxe)
    b := store.addEntry(model.RoomKindDeluxe)
    ctx := context.Background()

    _, err := eng.Offer(ctx, a, room)
    require.NoError(t, err)

    // A's offer lapses but nobody reads A; B claims the unit and A
    // is expired as a side effect.
    clk.Advance(11 * time.Minute)
    _, err = eng.Offer(ctx, b, room)
    require.NoError(t, err)

    assert.Equal(t, model.WaitlistExpired, store.waitlist[a].Status)
    assert.Equal(t, model.WaitlistOffered, store.waitlist[b].Status)
    assert.Equal(t, 1, store.openReservations(room))
}

func TestExpireDueSweep(t *testing.T) {
    store := newMemStore()
    eng, clk := newTestEngine(store)
    roomA := store.addRoom(model.RoomKindDeluxe, roomstate.StatusClean)
    roomB := store.addRoom(model.RoomKindDeluxe, roomstate.StatusClean)
    a := store.addEntry(model.RoomKindDeluxe)
    ctx := context.Background()

    _, err := eng.Offer(ctx, a, roomA)
    require.NoError(t, err)
    clk.Advance(5 * time.Minute)
    b := store.addEntry(model.RoomKindDeluxe)
    _, err = eng.Offer(ctx, b, roomB)
    require.NoError(t, err)

    clk.Advance(6 * time.Minute) // a is 11m old, b only 6m

    expired, err := eng.ExpireDue(ctx)
    require.NoError(t, err)
    assert.Equal(t, []uint64{a}, expired)
    assert.Equal(t, model.WaitlistExpired, store.waitlist[a].Status)
    assert.Equal(t, model.WaitlistOffered, store.waitlist[b].Status)
    assert.Equal(t, 0, store.openReservations(roomA))
    assert.Equal(t, 1, store.openReservations(roomB))
}

func TestCancelReleasesHold(t *testing.T) {
    store := newMemStore()
    eng, _ := newTestEngine(store)
    room := store.addRoom(model.RoomKindDeluxe, roomstate.StatusClean)
    entry := store.addEntry(model.RoomKindDeluxe)
    ctx := context.Background()

    _, err := eng.Offer(ctx, entry, room)
    require.NoError(t, err)
    require.NoError(t, eng.Cancel(ctx, entry))

    assert.Equal(t, model.WaitlistCancelled, store.waitlist[entry].Status)
    assert.Equal(t, 0, store.openReservations(room))

    assert.ErrorIs(t, eng.Cancel(ctx, entry), ErrWaitlistClosed)
}

func TestOfferUnknownIDs(t *testing.T) {
    store := newMemStore()
    eng, _ := newTestEngine(store)
    room := store.addRoom(model.RoomKindDeluxe, roomstate.StatusClean)
    entry := store.addEntry(model.RoomKindDeluxe)
    ctx := context.Background()

    _, err := eng.Offer(ctx, 999, room)
    assert.ErrorIs(t, err, errNoSuchEntry)
    _, err = eng.Offer(ctx, entry, 999)
    assert.ErrorIs(t, err, errNoSuchRoom)
}
