package resolve

import (
	"context"
	"errors"
	"testing"
	"time"

	"callnote-relay/internal/callctx"
	"callnote-relay/internal/directory"
	"callnote-relay/internal/overrides"
)

type stubCRM struct {
	contacts map[string]string
	err      error
	searched []string
}

func (s *stubCRM) FindContactByEmail(ctx context.Context, email string) (string, error) {
	s.searched = append(s.searched, email)
	if s.err != nil {
		return "", s.err
	}
	return s.contacts[email], nil
}

type slowDirectory struct {
	delay time.Duration
	rec   directory.Record
}

func (d slowDirectory) Get(ctx context.Context, phoneNumber string) (directory.Record, error) {
	select {
	case <-time.After(d.delay):
		return d.rec, nil
	case <-ctx.Done():
		return directory.Record{}, ctx.Err()
	}
}

func mustTable(t *testing.T, raw string) *overrides.Table {
	t.Helper()
	tbl, err := overrides.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("bad override table: %v", err)
	}
	return tbl
}

func newEngine(t *testing.T, tbl *overrides.Table, dir DirectoryLookup, crm ContactFinder) *Engine {
	t.Helper()
	e, err := NewEngine(tbl, dir, crm, callctx.NewMemoryStore(time.Hour), "fallback-id", time.Second)
	if err != nil {
		t.Fatalf("engine construction failed: %v", err)
	}
	return e
}

func TestNewEngine_RequiresFallback(t *testing.T) {
	if _, err := NewEngine(nil, nil, nil, nil, "", time.Second); !errors.Is(err, ErrNoFallback) {
		t.Fatalf("expected ErrNoFallback, got %v", err)
	}
}

func TestResolve_ContactOverrideWinsOverEverything(t *testing.T) {
	tbl := mustTable(t, `{"contactIds":{"5551234567":"override-contact"}}`)
	dir := directory.NewMemoryRepo()
	_, _ = dir.Put(context.Background(), directory.Record{PhoneNumber: "+15551234567", Email: "a@b.com"})
	crm := &stubCRM{contacts: map[string]string{"a@b.com": "crm-contact"}}

	e := newEngine(t, tbl, dir, crm)
	res := e.Resolve(context.Background(), CallEvent{
		CallID: "c1", From: "+15551234567", To: "+15550000000", Direction: DirectionIncoming,
	})
	if res.ContactID != "override-contact" || res.Tier != TierOverrideContact {
		t.Fatalf("unexpected resolution: %+v", res)
	}
	if len(crm.searched) != 0 {
		t.Fatalf("override must bypass crm search, searched %v", crm.searched)
	}
}

func TestResolve_DirectionSelectsLookupNumber(t *testing.T) {
	tbl := mustTable(t, `{"contactIds":{"5551234567":"caller-contact"}}`)
	e := newEngine(t, tbl, nil, nil)

	// Incoming: the other party is "from".
	res := e.Resolve(context.Background(), CallEvent{
		CallID: "c1", From: "+15551234567", To: "+15559999999", Direction: DirectionIncoming,
	})
	if res.ContactID != "caller-contact" {
		t.Fatalf("incoming should look up from-number, got %+v", res)
	}

	// Outgoing: the other party is "to".
	res = e.Resolve(context.Background(), CallEvent{
		CallID: "c2", From: "+15559999999", To: "+15551234567", Direction: DirectionOutgoing,
	})
	if res.ContactID != "caller-contact" {
		t.Fatalf("outgoing should look up to-number, got %+v", res)
	}
}

func TestResolve_OverrideEmailListGoesThroughCRM(t *testing.T) {
	tbl := mustTable(t, `{"emails":{"5551234567":["maya@ideas.com"]}}`)
	crm := &stubCRM{contacts: map[string]string{"maya@ideas.com": "maya-contact"}}

	e := newEngine(t, tbl, directory.NewMemoryRepo(), crm)
	res := e.Resolve(context.Background(), CallEvent{
		CallID: "c1", From: "+15551234567", Direction: DirectionIncoming,
	})
	if res.ContactID != "maya-contact" || res.Tier != TierOverrideEmail {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestResolve_DirectoryThenFirstCRMHit(t *testing.T) {
	dir := directory.NewMemoryRepo()
	_, _ = dir.Put(context.Background(), directory.Record{PhoneNumber: "+15551234567", Emails: []string{"e1@x.com", "e2@x.com"}})
	crm := &stubCRM{contacts: map[string]string{"e2@x.com": "c2"}}

	e := newEngine(t, overrides.Empty(), dir, crm)
	res := e.Resolve(context.Background(), CallEvent{
		CallID: "c1", From: "+15551234567", Direction: DirectionIncoming,
	})
	if res.ContactID != "c2" || res.Tier != TierDirectory {
		t.Fatalf("unexpected resolution: %+v", res)
	}
	if len(crm.searched) != 2 {
		t.Fatalf("expected both emails searched in order, got %v", crm.searched)
	}
	if crm.searched[0] != "e1@x.com" || crm.searched[1] != "e2@x.com" {
		t.Fatalf("search order wrong: %v", crm.searched)
	}
}

func TestResolve_FallbackWhenCRMUnreachable(t *testing.T) {
	dir := directory.NewMemoryRepo()
	_, _ = dir.Put(context.Background(), directory.Record{PhoneNumber: "+15551234567", Email: "a@b.com"})
	crm := &stubCRM{err: errors.New("crm down")}

	e := newEngine(t, overrides.Empty(), dir, crm)
	res := e.Resolve(context.Background(), CallEvent{
		CallID: "c1", From: "+15551234567", Direction: DirectionIncoming,
	})
	if res.ContactID != "fallback-id" || res.Tier != TierFallback {
		t.Fatalf("expected fallback, got %+v", res)
	}
}

func TestResolve_FallbackWhenNoDirectoryEntry(t *testing.T) {
	e := newEngine(t, overrides.Empty(), directory.NewMemoryRepo(), &stubCRM{})
	res := e.Resolve(context.Background(), CallEvent{
		CallID: "c1", From: "+15551234567", Direction: DirectionIncoming,
	})
	if res.ContactID != "fallback-id" || res.Tier != TierFallback {
		t.Fatalf("expected fallback, got %+v", res)
	}
}

func TestResolve_DirectoryTimeoutDegradesToFallback(t *testing.T) {
	dir := slowDirectory{delay: time.Second, rec: directory.Record{Emails: []string{"a@b.com"}}}
	crm := &stubCRM{contacts: map[string]string{"a@b.com": "c1"}}

	e, err := NewEngine(overrides.Empty(), dir, crm, nil, "fallback-id", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("engine construction failed: %v", err)
	}
	start := time.Now()
	res := e.Resolve(context.Background(), CallEvent{
		CallID: "c1", From: "+15551234567", Direction: DirectionIncoming,
	})
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("lookup was not bounded by timeout, took %v", elapsed)
	}
	if res.ContactID != "fallback-id" {
		t.Fatalf("expected fallback on timeout, got %+v", res)
	}
}

func TestResolve_LaterEventRecoversContext(t *testing.T) {
	dir := directory.NewMemoryRepo()
	_, _ = dir.Put(context.Background(), directory.Record{PhoneNumber: "+15551234567", Email: "caller@x.com"})
	crm := &stubCRM{contacts: map[string]string{"caller@x.com": "caller-contact"}}
	store := callctx.NewMemoryStore(time.Hour)
	e, err := NewEngine(overrides.Empty(), dir, crm, store, "fallback-id", time.Second)
	if err != nil {
		t.Fatalf("engine construction failed: %v", err)
	}

	// First event (recording) carries numbers and direction.
	first := e.Resolve(context.Background(), CallEvent{
		CallID: "call-42", From: "+15551234567", To: "+15550000000",
		Direction: DirectionIncoming, EventKind: "call.recording.completed",
	})

	// Later events (summary, transcript) carry neither numbers nor
	// direction; both must come back from the stored context or an
	// incoming call's summary would look up our own number.
	second := e.Resolve(context.Background(), CallEvent{
		CallID: "call-42", EventKind: "call.summary.completed",
	})

	if first.ContactID != "caller-contact" {
		t.Fatalf("recording resolution wrong: %+v", first)
	}
	if second.ContactID != first.ContactID {
		t.Fatalf("events for one call resolved differently: %+v vs %+v", first, second)
	}
	if second.LookupNumber != "+15551234567" {
		t.Fatalf("recovered event looked up wrong side of the call: %+v", second)
	}
}

func TestResolve_NoContextDegradesToFallback(t *testing.T) {
	e := newEngine(t, overrides.Empty(), directory.NewMemoryRepo(), &stubCRM{})
	res := e.Resolve(context.Background(), CallEvent{
		CallID: "never-seen", Direction: DirectionIncoming, EventKind: "call.summary.completed",
	})
	if res.ContactID != "fallback-id" || res.Tier != TierFallback {
		t.Fatalf("expected fallback without context, got %+v", res)
	}
}
