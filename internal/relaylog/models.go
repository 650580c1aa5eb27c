package relaylog

import "time"

// Entry is an immutable record of one relayed webhook delivery.
//
// Invariants:
// - Entries are never updated or deleted.
// - Writes are best-effort; a failed write must never block note creation.
//
// Storage (Postgres):
//
//	CREATE TABLE relay_events (
//	    id           TEXT PRIMARY KEY,
//	    call_id      TEXT NOT NULL,
//	    event_kind   TEXT NOT NULL,
//	    contact_id   TEXT NOT NULL,
//	    tier         TEXT NOT NULL,
//	    note_created BOOLEAN NOT NULL,
//	    error        TEXT NOT NULL DEFAULT '',
//	    created_at   TIMESTAMPTZ NOT NULL
//	);
type Entry struct {
	ID        string `json:"id"`
	CallID    string `json:"call_id"`
	EventKind string `json:"event_kind"`

	// ContactID is the resolved contact and Tier names the resolution
	// step that produced it (override_contact, override_email,
	// directory, fallback).
	ContactID string `json:"contact_id"`
	Tier      string `json:"tier"`

	NoteCreated bool   `json:"note_created"`
	Error       string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
