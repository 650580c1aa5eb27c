package relay

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Note bodies mirror the format the CRM users already know: a titled
// header with the call date, a divider, the event-specific body, and a
// direct link back to the call in OpenPhone.

const callLinkBase = "https://app.openphone.com/calls/"

const noteTimeLayout = "1/2/2006, 3:04:05 PM"

// Composer renders call events into note text.
type Composer struct {
	// Now supplies the timestamp used when an event carries none.
	Now func() time.Time
}

func (c Composer) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c Composer) Compose(ev Event) string {
	switch ev.Kind {
	case KindRecording:
		return c.recordingNote(ev)
	case KindSummary:
		return c.summaryNote(ev)
	case KindTranscript:
		return c.transcriptNote(ev)
	default:
		return ""
	}
}

func (c Composer) recordingNote(ev Event) string {
	rec := ev.Recording
	if rec == nil {
		rec = &RecordingObject{}
	}

	recordingURL := "No recording URL available"
	duration := "Unknown duration"
	if len(rec.Media) > 0 {
		if rec.Media[0].URL != "" {
			recordingURL = rec.Media[0].URL
		}
		if rec.Media[0].Duration > 0 {
			duration = fmt.Sprintf("%d minutes", int(math.Round(rec.Media[0].Duration/60)))
		}
	}
	caller := rec.From
	if caller == "" {
		caller = "Unknown caller"
	}
	receiver := rec.To
	if receiver == "" {
		receiver = "Unknown receiver"
	}

	return fmt.Sprintf(`
OpenPhone Call Recording - %s
-------------------------------------
From: %s
To: %s
Duration: %s
Recording: %s

Direct link to call in OpenPhone: %s%s
`, c.eventDate(ev, rec.CreatedAt), caller, receiver, duration, recordingURL, callLinkBase, ev.CallID)
}

func (c Composer) summaryNote(ev Event) string {
	sum := ev.Summary
	if sum == nil {
		sum = &SummaryObject{}
	}

	body := "No summary available"
	if len(sum.Summary) > 0 {
		body = "Summary:\n- " + strings.Join(sum.Summary, "\n- ")
		if len(sum.NextSteps) > 0 {
			body += "\n\nNext Steps:\n- " + strings.Join(sum.NextSteps, "\n- ")
		}
	}

	return fmt.Sprintf(`
OpenPhone Call Summary - %s
------------------------------------
%s

Direct link to call in OpenPhone: %s%s
`, c.eventDate(ev, ""), body, callLinkBase, ev.CallID)
}

func (c Composer) transcriptNote(ev Event) string {
	tr := ev.Transcript
	if tr == nil {
		tr = &TranscriptObject{}
	}

	body := "No transcript content"
	if len(tr.Dialogue) > 0 {
		lines := make([]string, 0, len(tr.Dialogue))
		for _, seg := range tr.Dialogue {
			speaker := seg.Identifier
			if speaker == "" {
				speaker = "Speaker"
			}
			lines = append(lines, speaker+": "+seg.Content)
		}
		body = strings.Join(lines, "\n")
	}

	return fmt.Sprintf(`
OpenPhone Call Transcript - %s
---------------------------------------
%s

Direct link to call in OpenPhone: %s%s
`, c.eventDate(ev, tr.CreatedAt), body, callLinkBase, ev.CallID)
}

func (c Composer) eventDate(ev Event, objCreatedAt string) string {
	if t := parseTime(objCreatedAt); !t.IsZero() {
		return t.Format(noteTimeLayout)
	}
	if !ev.CreatedAt.IsZero() {
		return ev.CreatedAt.Format(noteTimeLayout)
	}
	return c.now().Format(noteTimeLayout)
}
