package resolve

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"callnote-relay/internal/callctx"
	"callnote-relay/internal/directory"
	"callnote-relay/internal/overrides"
	"callnote-relay/internal/phone"
)

// Engine resolves a call event to a CRM contact id.
//
// Priority:
//  1) Static contact-id override for the lookup number
//  2) Static email override, then CRM search
//  3) Directory lookup (timeout-bounded), then CRM search
//  4) Configured fallback contact
//
// Every step degrades forward on failure; there are no retries inside a
// single resolution. A slow or unreachable directory must never delay the
// webhook into the provider's retry window, so the directory lookup runs
// under its own deadline and a timeout counts as a miss.

type Engine struct {
	Overrides *overrides.Table
	Directory DirectoryLookup
	CRM       ContactFinder
	Contexts  callctx.Store

	// FallbackContactID must be non-empty; its absence is a configuration
	// error enforced at construction.
	FallbackContactID string

	LookupTimeout time.Duration

	Log *slog.Logger
}

// DirectoryLookup is the slice of the directory the engine needs.
type DirectoryLookup interface {
	Get(ctx context.Context, phoneNumber string) (directory.Record, error)
}

// ContactFinder is the slice of the CRM client the engine needs.
type ContactFinder interface {
	FindContactByEmail(ctx context.Context, email string) (string, error)
}

// CallEvent is the provider-agnostic input to resolution. From/To are only
// present on the first event of a call; later events carry just the id.
type CallEvent struct {
	CallID    string
	From      string
	To        string
	Direction string // "incoming" or "outgoing"; empty treated as outgoing
	EventKind string
}

const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// Resolution reports the contact id and which tier produced it.
type Resolution struct {
	ContactID string
	Tier      Tier

	// LookupNumber is the normalized number used for matching, empty when
	// no phone context was available.
	LookupNumber string
}

type Tier string

const (
	TierOverrideContact Tier = "override_contact"
	TierOverrideEmail   Tier = "override_email"
	TierDirectory       Tier = "directory"
	TierFallback        Tier = "fallback"
)

var ErrNoFallback = errors.New("resolve: fallback contact id not configured")

func NewEngine(tbl *overrides.Table, dir DirectoryLookup, crm ContactFinder, contexts callctx.Store, fallbackContactID string, lookupTimeout time.Duration) (*Engine, error) {
	if fallbackContactID == "" {
		return nil, ErrNoFallback
	}
	if tbl == nil {
		tbl = overrides.Empty()
	}
	if lookupTimeout <= 0 {
		lookupTimeout = 2 * time.Second
	}
	return &Engine{
		Overrides:         tbl,
		Directory:         dir,
		CRM:               crm,
		Contexts:          contexts,
		FallbackContactID: fallbackContactID,
		LookupTimeout:     lookupTimeout,
	}, nil
}

// Resolve computes the contact id for a call event. It never fails once the
// engine is constructed: every degraded path lands on the fallback contact.
func (e *Engine) Resolve(ctx context.Context, ev CallEvent) Resolution {
	log := e.logger().With("call_id", ev.CallID, "event", ev.EventKind)

	from, to, direction := e.recoverCall(ctx, ev, log)

	// For a call we placed the other party is in "to"; for a call placed
	// to us it is in "from".
	lookupRaw := from
	if direction != DirectionIncoming {
		lookupRaw = to
	}

	lookupNumber, ok := phone.Normalize(lookupRaw)
	if !ok {
		if lookupRaw != "" {
			log.Warn("lookup number failed normalization", "raw", lookupRaw)
		}
		return Resolution{ContactID: e.FallbackContactID, Tier: TierFallback}
	}

	if id, ok := e.Overrides.ContactIDFor(lookupNumber); ok {
		log.Info("resolved via contact override", "lookup_number", lookupNumber)
		return Resolution{ContactID: id, Tier: TierOverrideContact, LookupNumber: lookupNumber}
	}

	if emails, ok := e.Overrides.EmailsFor(lookupNumber); ok {
		if id := e.searchContacts(ctx, emails, log); id != "" {
			return Resolution{ContactID: id, Tier: TierOverrideEmail, LookupNumber: lookupNumber}
		}
		return Resolution{ContactID: e.FallbackContactID, Tier: TierFallback, LookupNumber: lookupNumber}
	}

	if emails := e.directoryEmails(ctx, lookupNumber, log); len(emails) > 0 {
		if id := e.searchContacts(ctx, emails, log); id != "" {
			return Resolution{ContactID: id, Tier: TierDirectory, LookupNumber: lookupNumber}
		}
	}

	log.Info("no contact resolved, using fallback", "lookup_number", lookupNumber)
	return Resolution{ContactID: e.FallbackContactID, Tier: TierFallback, LookupNumber: lookupNumber}
}

// recoverCall persists the numbers and direction carried by the event, or
// recovers them from call context for events that arrive without them.
// Summary and transcript deliveries omit direction entirely, so the stored
// direction fills in whenever the event has none; otherwise an incoming
// call's later events would look up the wrong side of the call. Both
// directions of the exchange are best-effort: storage failures are logged
// and resolution continues with whatever is available.
func (e *Engine) recoverCall(ctx context.Context, ev CallEvent, log *slog.Logger) (from, to, direction string) {
	if ev.From != "" || ev.To != "" {
		if e.Contexts != nil && ev.CallID != "" {
			cc := callctx.Context{
				From:            ev.From,
				To:              ev.To,
				Direction:       ev.Direction,
				IsOverrideMatch: e.Overrides.Matches(ev.From, ev.To),
			}
			if err := e.Contexts.Put(ctx, ev.CallID, cc); err != nil {
				log.Warn("call context store failed", "err", err)
			}
		}
		return ev.From, ev.To, ev.Direction
	}

	if e.Contexts == nil || ev.CallID == "" {
		return "", "", ev.Direction
	}
	cc, ok, err := e.Contexts.Get(ctx, ev.CallID)
	if err != nil {
		log.Warn("call context fetch failed", "err", err)
		return "", "", ev.Direction
	}
	if !ok {
		log.Info("no stored call context, resolution will degrade")
		return "", "", ev.Direction
	}
	direction = ev.Direction
	if direction == "" {
		direction = cc.Direction
	}
	return cc.From, cc.To, direction
}

// directoryEmails looks up the email list for a number under the engine's
// deadline. Timeouts, misses and store failures all come back empty.
func (e *Engine) directoryEmails(ctx context.Context, lookupNumber string, log *slog.Logger) []string {
	if e.Directory == nil {
		return nil
	}
	lookupCtx, cancel := context.WithTimeout(ctx, e.LookupTimeout)
	defer cancel()

	rec, err := e.Directory.Get(lookupCtx, lookupNumber)
	if err != nil {
		switch {
		case errors.Is(err, directory.ErrNotFound):
			log.Info("no directory mapping", "lookup_number", lookupNumber)
		case errors.Is(err, context.DeadlineExceeded):
			log.Warn("directory lookup timed out", "lookup_number", lookupNumber)
		default:
			log.Warn("directory lookup failed", "lookup_number", lookupNumber, "err", err)
		}
		return nil
	}
	return rec.Emails
}

// searchContacts tries each email in order and returns the first contact id
// the CRM reports. Malformed entries and per-email failures are skipped,
// never fatal.
func (e *Engine) searchContacts(ctx context.Context, emails []string, log *slog.Logger) string {
	if e.CRM == nil {
		return ""
	}
	for _, email := range emails {
		if email == "" {
			continue
		}
		id, err := e.CRM.FindContactByEmail(ctx, email)
		if err != nil {
			log.Warn("crm contact search failed", "email", email, "err", err)
			continue
		}
		if id != "" {
			log.Info("resolved contact via crm search", "email", email)
			return id
		}
	}
	return ""
}

func (e *Engine) logger() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}
