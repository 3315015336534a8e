// Package roomstate validates cleaning-cycle transitions for a single
// room or locker in isolation from storage and networking.  The normal
// operational cycle is DIRTY → CLEANING → CLEAN → OCCUPIED → DIRTY,
// with the cleaning steps reversible so staff can back out of a
// mis-tap.  Any other transition is a privileged correction that
// requires an explicit override from staff.
package roomstate

import "fmt"

// Room statuses.  These mirror the rooms.status column.
const (
    StatusDirty    = "DIRTY"
    StatusCleaning = "CLEANING"
    StatusClean    = "CLEAN"
    StatusOccupied = "OCCUPIED"
)

// NeedsOverrideError signals a transition outside the normal cycle.
// It is a soft failure: callers surface it to staff as a confirmation
// prompt rather than rejecting the request outright.
type NeedsOverrideError struct {
    From string
    To   string
}

func (e *NeedsOverrideError) Error() string {
    return fmt.Sprintf("transition %s -> %s requires override", e.From, e.To)
}

// adjacent holds the normal operational transitions.  The map is
// directional; both directions are listed where the step is
// reversible.  OCCUPIED → DIRTY is checkout and has no reverse.
var adjacent = map[string][]string{
    StatusDirty:    {StatusCleaning},
    StatusCleaning: {StatusDirty, StatusClean},
    StatusClean:    {StatusCleaning, StatusOccupied},
    StatusOccupied: {StatusDirty},
}

// Valid reports whether s is a known room status.
func Valid(s string) bool {
    _, ok := adjacent[s]
    return ok
}

// ValidateTransition checks a status change for a single unit.  A
// no-op (from == to) is always allowed, as is any adjacent step in
// the normal cycle.  When override is set the transition is allowed
// regardless of adjacency; callers log such corrections as
// privileged.  A non-adjacent transition without override fails with
// *NeedsOverrideError.  Unknown statuses fail with a hard error.
func ValidateTransition(from, to string, override bool) error {
    if !Valid(from) {
        return fmt.Errorf("unknown room status %q", from)
    }
    if !Valid(to) {
        return fmt.Errorf("unknown room status %q", to)
    }
    if from == to {
        return nil
    }
    for _, next := range adjacent[from] {
        if next == to {
            return nil
        }
    }
    if override {
        return nil
    }
    return &NeedsOverrideError{From: from, To: to}
}
