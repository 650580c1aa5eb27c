package relay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"callnote-relay/internal/callctx"
	"callnote-relay/internal/directory"
	"callnote-relay/internal/overrides"
	"callnote-relay/internal/relaylog"
	"callnote-relay/internal/resolve"

	"github.com/gin-gonic/gin"
)

type stubCRM struct {
	mu       sync.Mutex
	contacts map[string]string
	notes    []createdNote
	noteErr  error
}

type createdNote struct {
	ContactID string
	Details   string
}

func (s *stubCRM) FindContactByEmail(ctx context.Context, email string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contacts[email], nil
}

func (s *stubCRM) CreateNote(ctx context.Context, contactID, details string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.noteErr != nil {
		return s.noteErr
	}
	s.notes = append(s.notes, createdNote{ContactID: contactID, Details: details})
	return nil
}

type memDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *memDeduper) Claim(ctx context.Context, deliveryID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	if d.seen[deliveryID] {
		return false, nil
	}
	d.seen[deliveryID] = true
	return true, nil
}

func (d *memDeduper) Release(ctx context.Context, deliveryID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, deliveryID)
	return nil
}

type relayFixture struct {
	router *gin.Engine
	crm    *stubCRM
	log    *relaylog.MemoryRepo
	dir    *directory.MemoryRepo
}

func newRelayFixture(t *testing.T, tbl *overrides.Table, dedupe Deduper) relayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := directory.NewMemoryRepo()
	crm := &stubCRM{contacts: map[string]string{}}
	engine, err := resolve.NewEngine(tbl, dir, crm, callctx.NewMemoryStore(time.Hour), "fallback-id", time.Second)
	if err != nil {
		t.Fatalf("engine construction failed: %v", err)
	}
	logRepo := relaylog.NewMemoryRepo()

	h := Handler{
		Engine:   engine,
		Composer: testComposer(),
		Notes:    crm,
		Dedupe:   dedupe,
		Log:      relaylog.NewService(logRepo),
	}
	r := gin.New()
	r.POST("/webhooks/openphone", h.HandleWebhook)

	return relayFixture{router: r, crm: crm, log: logRepo, dir: dir}
}

func (f relayFixture) post(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/openphone", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestHandleWebhook_RecordingCreatesNote(t *testing.T) {
	f := newRelayFixture(t, overrides.Empty(), nil)
	_, _ = f.dir.Put(context.Background(), directory.Record{PhoneNumber: "+15551234567", Email: "a@b.com"})
	f.crm.contacts["a@b.com"] = "contact-a"

	w := f.post(t, recordingBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if len(f.crm.notes) != 1 || f.crm.notes[0].ContactID != "contact-a" {
		t.Fatalf("unexpected notes: %+v", f.crm.notes)
	}
	if !strings.Contains(f.crm.notes[0].Details, "OpenPhone Call Recording") {
		t.Fatalf("unexpected note body: %s", f.crm.notes[0].Details)
	}
}

func TestHandleWebhook_SummaryReusesStoredContext(t *testing.T) {
	// The summary event carries no phone numbers; it must resolve to the
	// same contact as the recording event that preceded it.
	f := newRelayFixture(t, overrides.Empty(), nil)
	_, _ = f.dir.Put(context.Background(), directory.Record{PhoneNumber: "+15551234567", Email: "a@b.com"})
	f.crm.contacts["a@b.com"] = "contact-a"

	if w := f.post(t, recordingBody); w.Code != http.StatusOK {
		t.Fatalf("recording status = %d", w.Code)
	}
	if w := f.post(t, summaryBody); w.Code != http.StatusOK {
		t.Fatalf("summary status = %d", w.Code)
	}

	if len(f.crm.notes) != 2 {
		t.Fatalf("expected 2 notes, got %d", len(f.crm.notes))
	}
	if f.crm.notes[0].ContactID != f.crm.notes[1].ContactID {
		t.Fatalf("events for one call hit different contacts: %+v", f.crm.notes)
	}
}

func TestHandleWebhook_SummaryWithoutContextFallsBack(t *testing.T) {
	f := newRelayFixture(t, overrides.Empty(), nil)

	w := f.post(t, summaryBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(f.crm.notes) != 1 || f.crm.notes[0].ContactID != "fallback-id" {
		t.Fatalf("expected fallback note, got %+v", f.crm.notes)
	}
}

func TestHandleWebhook_UnknownTypeAcknowledged(t *testing.T) {
	f := newRelayFixture(t, overrides.Empty(), nil)
	w := f.post(t, `{"type":"call.completed","data":{"object":{}}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(f.crm.notes) != 0 {
		t.Fatalf("unhandled types must not create notes")
	}
}

func TestHandleWebhook_InvalidBody(t *testing.T) {
	f := newRelayFixture(t, overrides.Empty(), nil)
	w := f.post(t, "not json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleWebhook_DuplicateDeliveryIgnored(t *testing.T) {
	f := newRelayFixture(t, overrides.Empty(), &memDeduper{})

	if w := f.post(t, recordingBody); w.Code != http.StatusOK {
		t.Fatalf("first delivery status = %d", w.Code)
	}
	if w := f.post(t, recordingBody); w.Code != http.StatusOK {
		t.Fatalf("duplicate delivery status = %d", w.Code)
	}
	if len(f.crm.notes) != 1 {
		t.Fatalf("duplicate delivery must not create a second note, got %d", len(f.crm.notes))
	}
}

func TestHandleWebhook_RetryAfterNoteFailureSucceeds(t *testing.T) {
	// A note failure returns 500 so the provider redelivers; the failed
	// attempt must not hold its dedupe claim or the redelivery would be
	// dropped as a duplicate and the note lost for good.
	f := newRelayFixture(t, overrides.Empty(), &memDeduper{})
	f.crm.noteErr = errors.New("crm rejected")

	if w := f.post(t, recordingBody); w.Code != http.StatusInternalServerError {
		t.Fatalf("failing delivery status = %d, want 500", w.Code)
	}

	f.crm.noteErr = nil
	if w := f.post(t, recordingBody); w.Code != http.StatusOK {
		t.Fatalf("retry status = %d, body %s", w.Code, w.Body.String())
	}
	if len(f.crm.notes) != 1 {
		t.Fatalf("retry should create the note, got %d", len(f.crm.notes))
	}
}

func TestHandleWebhook_NoteFailureIs500(t *testing.T) {
	f := newRelayFixture(t, overrides.Empty(), nil)
	f.crm.noteErr = errors.New("crm rejected")

	w := f.post(t, recordingBody)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}

	entries := f.log.Entries()
	if len(entries) != 1 || entries[0].NoteCreated || entries[0].Error == "" {
		t.Fatalf("expected failed relay log entry, got %+v", entries)
	}
}

func TestHandleWebhook_LogsResolutionTier(t *testing.T) {
	tbl, err := overrides.Parse([]byte(`{"contactIds":{"5551234567":"vip-contact"}}`))
	if err != nil {
		t.Fatalf("bad table: %v", err)
	}
	f := newRelayFixture(t, tbl, nil)

	if w := f.post(t, recordingBody); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	entries := f.log.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if entries[0].ContactID != "vip-contact" || entries[0].Tier != "override_contact" {
		t.Fatalf("unexpected log entry: %+v", entries[0])
	}
	if !entries[0].NoteCreated {
		t.Fatalf("expected note_created true")
	}
}
