package realtime

import (
    "log"
    "sync"
)

// subscriptionBuffer is the per-subscriber event buffer.  A consumer
// that falls this far behind starts losing events, which is
// acceptable: the channel is a best-effort overlay and the terminal
// re-syncs over HTTP.
const subscriptionBuffer = 16

// Subscription is one terminal's registration on a lane channel.
// Events arrive on C until Unsubscribe closes it.
type Subscription struct {
    Lane string
    Role string
    C    chan Event
}

// Hub maintains the mapping from (lane, role) to the set of live
// subscriptions and fans events out to them.  It is safe for
// concurrent use.
type Hub struct {
    mu   sync.RWMutex
    subs map[string]map[*Subscription]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
    return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

func channelKey(lane, role string) string { return lane + "|" + role }

// Subscribe registers a new subscription for the given lane and
// role.  The caller owns draining the returned channel and must call
// Unsubscribe when the socket goes away.
func (h *Hub) Subscribe(lane, role string) *Subscription {
    sub := &Subscription{
        Lane: lane,
        Role: role,
        C:    make(chan Event, subscriptionBuffer),
    }
    key := channelKey(lane, role)
    h.mu.Lock()
    set, ok := h.subs[key]
    if !ok {
        set = make(map[*Subscription]struct{})
        h.subs[key] = set
    }
    set[sub] = struct{}{}
    h.mu.Unlock()
    return sub
}

// Unsubscribe removes a subscription and closes its channel.  It is
// idempotent so both the read and write side of a socket may call it
// on teardown.
func (h *Hub) Unsubscribe(sub *Subscription) {
    key := channelKey(sub.Lane, sub.Role)
    h.mu.Lock()
    set, ok := h.subs[key]
    if ok {
        if _, live := set[sub]; live {
            delete(set, sub)
            close(sub.C)
        }
        if len(set) == 0 {
            delete(h.subs, key)
        }
    }
    h.mu.Unlock()
}

// Broadcast delivers an event to every subscription on the event's
// lane whose role is in scope.  Delivery never blocks: a subscriber
// with a full buffer is skipped and the drop is logged.  Within one
// lane-role channel, events sent from a single goroutine arrive in
// emission order.
func (h *Hub) Broadcast(ev Event) {
    roles := ev.Roles
    if len(roles) == 0 {
        roles = []string{RoleCustomer, RoleEmployee}
    }
    h.mu.RLock()
    defer h.mu.RUnlock()
    for _, role := range roles {
        for sub := range h.subs[channelKey(ev.Lane, role)] {
            select {
            case sub.C <- ev:
            default:
                log.Printf("broadcaster: dropping %s for slow %s/%s subscriber", ev.Type, ev.Lane, role)
            }
        }
    }
}

// Subscribers reports how many live subscriptions a lane-role
// channel currently has.
func (h *Hub) Subscribers(lane, role string) int {
    h.mu.RLock()
    defer h.mu.RUnlock()
    return len(h.subs[channelKey(lane, role)])
}
