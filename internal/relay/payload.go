package relay

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// OpenPhone splits one call into several webhook deliveries. Each arrives
// as {id, type, createdAt, data:{object:{...}}}; the object shape depends
// on the type. Only the recording object carries the call's phone numbers;
// transcript and summary objects reference the call by callId.

type EventKind string

const (
	KindRecording  EventKind = "recording"
	KindSummary    EventKind = "summary"
	KindTranscript EventKind = "transcript"
	KindUnknown    EventKind = "unknown"
)

// Event is the parsed, provider-shaped webhook delivery.
type Event struct {
	Kind EventKind
	// Type is the raw provider type string, e.g. "call.recording.completed".
	Type string
	// DeliveryID identifies this delivery for dedupe purposes.
	DeliveryID string

	CallID    string
	From      string
	To        string
	Direction string

	CreatedAt time.Time

	Recording  *RecordingObject
	Summary    *SummaryObject
	Transcript *TranscriptObject
}

type envelope struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	CreatedAt string `json:"createdAt"`
	Data      struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type RecordingObject struct {
	ID        string      `json:"id"`
	From      string      `json:"from"`
	To        string      `json:"to"`
	Direction string      `json:"direction"`
	CreatedAt string      `json:"createdAt"`
	Media     []MediaItem `json:"media"`
}

type MediaItem struct {
	URL      string  `json:"url"`
	Duration float64 `json:"duration"`
}

type SummaryObject struct {
	CallID    string   `json:"callId"`
	Summary   []string `json:"summary"`
	NextSteps []string `json:"nextSteps"`
}

type TranscriptObject struct {
	CallID    string            `json:"callId"`
	CreatedAt string            `json:"createdAt"`
	Dialogue  []DialogueSegment `json:"dialogue"`
}

type DialogueSegment struct {
	Identifier string `json:"identifier"`
	Content    string `json:"content"`
}

// ParseEvent decodes a webhook body into an Event. Unknown types parse
// successfully with Kind = KindUnknown so the handler can acknowledge them
// without processing.
func ParseEvent(body []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Event{}, fmt.Errorf("relay: invalid webhook body: %w", err)
	}

	ev := Event{
		Type:       env.Type,
		DeliveryID: env.ID,
		CreatedAt:  parseTime(env.CreatedAt),
	}

	switch {
	case strings.Contains(env.Type, "recording"):
		ev.Kind = KindRecording
		var obj RecordingObject
		if len(env.Data.Object) > 0 {
			if err := json.Unmarshal(env.Data.Object, &obj); err != nil {
				return Event{}, fmt.Errorf("relay: invalid recording object: %w", err)
			}
		}
		ev.Recording = &obj
		ev.CallID = obj.ID
		ev.From = obj.From
		ev.To = obj.To
		ev.Direction = obj.Direction
	case strings.Contains(env.Type, "summary"):
		ev.Kind = KindSummary
		var obj SummaryObject
		if len(env.Data.Object) > 0 {
			if err := json.Unmarshal(env.Data.Object, &obj); err != nil {
				return Event{}, fmt.Errorf("relay: invalid summary object: %w", err)
			}
		}
		ev.Summary = &obj
		ev.CallID = obj.CallID
		ev.Direction = directionFromObject(env.Data.Object)
	case strings.Contains(env.Type, "transcript"):
		ev.Kind = KindTranscript
		var obj TranscriptObject
		if len(env.Data.Object) > 0 {
			if err := json.Unmarshal(env.Data.Object, &obj); err != nil {
				return Event{}, fmt.Errorf("relay: invalid transcript object: %w", err)
			}
		}
		ev.Transcript = &obj
		ev.CallID = obj.CallID
		ev.CreatedAt = firstNonZero(parseTime(obj.CreatedAt), ev.CreatedAt)
		ev.Direction = directionFromObject(env.Data.Object)
	default:
		ev.Kind = KindUnknown
	}
	return ev, nil
}

// directionFromObject pulls an optional direction field out of non-recording
// objects; most deliveries omit it.
func directionFromObject(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var probe struct {
		Direction string `json:"direction"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.Direction
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func firstNonZero(a, b time.Time) time.Time {
	if !a.IsZero() {
		return a
	}
	return b
}
