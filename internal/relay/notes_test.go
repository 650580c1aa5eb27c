package relay

import (
	"strings"
	"testing"
	"time"
)

func testComposer() Composer {
	return Composer{Now: func() time.Time {
		return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	}}
}

func TestComposeRecordingNote(t *testing.T) {
	ev, err := ParseEvent([]byte(recordingBody))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	note := testComposer().Compose(ev)

	for _, want := range []string{
		"OpenPhone Call Recording",
		"From: +15551234567",
		"To: +15559876543",
		"Duration: 6 minutes", // 330s rounds to 6
		"Recording: https://media.example/rec.mp3",
		"https://app.openphone.com/calls/AC123",
	} {
		if !strings.Contains(note, want) {
			t.Fatalf("note missing %q:\n%s", want, note)
		}
	}
}

func TestComposeRecordingNote_NoMedia(t *testing.T) {
	note := testComposer().Compose(Event{Kind: KindRecording, CallID: "AC1", Recording: &RecordingObject{}})
	if !strings.Contains(note, "No recording URL available") {
		t.Fatalf("expected placeholder recording URL:\n%s", note)
	}
	if !strings.Contains(note, "Unknown duration") {
		t.Fatalf("expected unknown duration:\n%s", note)
	}
	if !strings.Contains(note, "Unknown caller") {
		t.Fatalf("expected unknown caller:\n%s", note)
	}
}

func TestComposeSummaryNote(t *testing.T) {
	ev, err := ParseEvent([]byte(summaryBody))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	note := testComposer().Compose(ev)

	for _, want := range []string{
		"OpenPhone Call Summary",
		"Summary:\n- Discussed pricing\n- Agreed on follow-up",
		"Next Steps:\n- Send proposal",
	} {
		if !strings.Contains(note, want) {
			t.Fatalf("note missing %q:\n%s", want, note)
		}
	}
}

func TestComposeSummaryNote_Empty(t *testing.T) {
	note := testComposer().Compose(Event{Kind: KindSummary, CallID: "AC1", Summary: &SummaryObject{}})
	if !strings.Contains(note, "No summary available") {
		t.Fatalf("expected summary placeholder:\n%s", note)
	}
}

func TestComposeTranscriptNote(t *testing.T) {
	ev, err := ParseEvent([]byte(transcriptBody))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	note := testComposer().Compose(ev)

	if !strings.Contains(note, "Agent: Hello") {
		t.Fatalf("expected dialogue line:\n%s", note)
	}
	// Segments without an identifier fall back to a generic speaker label.
	if !strings.Contains(note, "Speaker: Hi there") {
		t.Fatalf("expected fallback speaker label:\n%s", note)
	}
}
