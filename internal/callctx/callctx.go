package callctx

import (
	"context"
	"time"
)

// Context carries the phone numbers and direction of a call across the
// provider's split webhook deliveries. Only the first event of a call (the
// recording) has from/to/direction; transcript and summary events recover
// them from here. Direction matters as much as the numbers: without it a
// later event cannot tell which side of the call is the external party.
type Context struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Direction string `json:"direction,omitempty"`

	// IsOverrideMatch marks calls whose numbers hit the static override
	// table when the context was stored.
	IsOverrideMatch bool `json:"isOverrideMatch,omitempty"`
}

// Store is the persistence contract for call context.
//
// Semantics are best-effort on both sides: writes may fail without failing
// the webhook, and a read miss is a normal outcome (resolution then
// degrades to the fallback contact). Entries expire after a bounded
// retention window; there is no explicit delete.
type Store interface {
	Put(ctx context.Context, callID string, cc Context) error
	// Get returns (Context{}, false, nil) on a miss.
	Get(ctx context.Context, callID string) (Context, bool, error)
}

// Layered reads from a fast in-process cache first and falls back to a
// persistent store; hits from the fallback are promoted into the cache.
// Writes go through to both.
//
// The in-process layer only helps when consecutive events land in the same
// process. Correctness never depends on it.
type Layered struct {
	Memory  Store
	Durable Store
}

func (l Layered) Put(ctx context.Context, callID string, cc Context) error {
	if l.Memory != nil {
		_ = l.Memory.Put(ctx, callID, cc)
	}
	if l.Durable == nil {
		return nil
	}
	return l.Durable.Put(ctx, callID, cc)
}

func (l Layered) Get(ctx context.Context, callID string) (Context, bool, error) {
	if l.Memory != nil {
		if cc, ok, err := l.Memory.Get(ctx, callID); err == nil && ok {
			return cc, true, nil
		}
	}
	if l.Durable == nil {
		return Context{}, false, nil
	}
	cc, ok, err := l.Durable.Get(ctx, callID)
	if err != nil || !ok {
		return Context{}, false, err
	}
	if l.Memory != nil {
		_ = l.Memory.Put(ctx, callID, cc)
	}
	return cc, true, nil
}

// DefaultTTL bounds call context retention. The provider delivers all
// events for a call well inside this window.
const DefaultTTL = time.Hour
