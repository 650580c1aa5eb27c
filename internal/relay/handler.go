package relay

import (
	"context"
	"net/http"

	"callnote-relay/internal/relaylog"
	"callnote-relay/internal/resolve"
	"callnote-relay/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handler converts provider webhooks into CRM notes. The provider retries
// aggressively on non-200 responses, so once a body parses the handler
// acknowledges with 200 in every degraded path short of the CRM rejecting
// the note itself.
type Handler struct {
	Engine   *resolve.Engine
	Composer Composer
	Notes    NoteCreator

	// Dedupe is optional; without it every delivery is processed.
	Dedupe Deduper

	// Log is optional best-effort observability.
	Log *relaylog.Service
}

// NoteCreator is the slice of the CRM client the relay needs.
type NoteCreator interface {
	CreateNote(ctx context.Context, contactID, details string) error
}

// Deduper claims a delivery id, returning false when it was already
// processed within the dedupe window. Release gives a claim back so the
// provider's retry of a failed delivery is not mistaken for a duplicate.
type Deduper interface {
	Claim(ctx context.Context, deliveryID string) (bool, error)
	Release(ctx context.Context, deliveryID string) error
}

func (h Handler) HandleWebhook(c *gin.Context) {
	log := logger.FromGin(c)

	body, err := c.GetRawData()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	ev, err := ParseEvent(body)
	if err != nil {
		log.Warn("webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid webhook payload"})
		return
	}
	log = log.With("call_id", ev.CallID, "type", ev.Type)

	if ev.Kind == KindUnknown {
		log.Info("unhandled webhook type")
		c.JSON(http.StatusOK, gin.H{"message": "Unhandled webhook type"})
		return
	}

	ctx := c.Request.Context()

	claimed := false
	if h.Dedupe != nil && ev.DeliveryID != "" {
		fresh, err := h.Dedupe.Claim(ctx, ev.DeliveryID)
		if err != nil {
			// Dedupe is an optimization; process anyway.
			log.Warn("dedupe claim failed", "err", err)
		} else if fresh {
			claimed = true
		} else {
			log.Info("duplicate delivery ignored", "delivery_id", ev.DeliveryID)
			c.JSON(http.StatusOK, gin.H{"message": "Duplicate delivery ignored"})
			return
		}
	}

	res := h.Engine.Resolve(ctx, resolve.CallEvent{
		CallID:    ev.CallID,
		From:      ev.From,
		To:        ev.To,
		Direction: ev.Direction,
		EventKind: ev.Type,
	})
	log.Info("contact resolved", "contact_id", res.ContactID, "tier", string(res.Tier))

	details := h.Composer.Compose(ev)
	if err := h.Notes.CreateNote(ctx, res.ContactID, details); err != nil {
		log.Error("note creation failed", "contact_id", res.ContactID, "err", err)
		// The 500 makes the provider redeliver; the claim must not be
		// left standing or the retry would be dropped as a duplicate.
		if claimed {
			if relErr := h.Dedupe.Release(ctx, ev.DeliveryID); relErr != nil {
				log.Warn("dedupe release failed", "err", relErr)
			}
		}
		h.record(ctx, ev, res, false, err.Error())
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to process webhook"})
		return
	}

	h.record(ctx, ev, res, true, "")
	c.JSON(http.StatusOK, gin.H{"message": "Webhook processed successfully"})
}

func (h Handler) record(ctx context.Context, ev Event, res resolve.Resolution, noteCreated bool, errMsg string) {
	if h.Log == nil {
		return
	}
	_ = h.Log.Append(ctx, relaylog.Entry{
		CallID:      ev.CallID,
		EventKind:   ev.Type,
		ContactID:   res.ContactID,
		Tier:        string(res.Tier),
		NoteCreated: noteCreated,
		Error:       errMsg,
	})
}
