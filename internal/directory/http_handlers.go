package directory

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"callnote-relay/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers exposes the directory over HTTP.
// Keep these thin: parse/validate input, call the service, return JSON.
type Handlers struct {
	Service *Service
}

// CORS applies the permissive headers the directory UI depends on and
// answers preflight requests with 204.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS, DELETE")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (h Handlers) List(c *gin.Context) {
	limit := 25
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	recs, lastKey, err := h.Service.List(c.Request.Context(), c.Query("search"), limit, c.Query("startAfter"))
	if err != nil {
		h.writeError(c, err, "failed to get mappings")
		return
	}
	if recs == nil {
		recs = []Record{}
	}
	c.JSON(http.StatusOK, gin.H{"mappings": recs, "lastKey": lastKey})
}

func (h Handlers) GetByPhone(c *gin.Context) {
	rec, err := h.Service.Get(c.Request.Context(), c.Param("phone"))
	if err != nil {
		h.writeError(c, err, "failed to get mapping")
		return
	}
	c.JSON(http.StatusOK, rec)
}

type uploadRequest struct {
	CSVContent string `json:"csvContent"`
}

// Save handles both mapping writes and CSV uploads on the same route.
// A body with csvContent (or ?action=upload) is treated as a bulk import;
// anything else is a single record or an array of records.
func (h Handlers) Save(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	if c.Query("action") == "upload" || isUploadBody(body) {
		var req uploadRequest
		if err := json.Unmarshal(body, &req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		res, err := h.Service.ImportCSV(c.Request.Context(), req.CSVContent)
		if err != nil {
			h.writeError(c, err, "failed to import csv")
			return
		}
		rejected := res.Rejected
		if rejected == nil {
			rejected = []string{}
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "count": res.Accepted, "rejected": rejected})
		return
	}

	var recs []Record
	if len(body) > 0 && body[0] == '[' {
		if err := json.Unmarshal(body, &recs); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	} else {
		var rec Record
		if err := json.Unmarshal(body, &rec); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		recs = []Record{rec}
	}

	count, err := h.Service.Save(c.Request.Context(), recs)
	if err != nil {
		h.writeError(c, err, "failed to save mappings")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": count})
}

type lookupRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

// Lookup resolves a phone number to its email list. The response keeps the
// legacy single email field alongside the array for older readers.
func (h Handlers) Lookup(c *gin.Context) {
	var req lookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.PhoneNumber == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "phone number is required"})
		return
	}
	rec, err := h.Service.Get(c.Request.Context(), req.PhoneNumber)
	if err != nil {
		h.writeError(c, err, "failed to lookup email")
		return
	}
	c.JSON(http.StatusOK, gin.H{"emails": rec.Emails, "email": rec.Email, "count": len(rec.Emails)})
}

func (h Handlers) Delete(c *gin.Context) {
	if err := h.Service.Delete(c.Request.Context(), c.Param("phone")); err != nil {
		h.writeError(c, err, "failed to delete mapping")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h Handlers) Count(c *gin.Context) {
	n, err := h.Service.Count(c.Request.Context())
	if err != nil {
		h.writeError(c, err, "failed to count mappings")
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (h Handlers) writeError(c *gin.Context, err error, fallbackMsg string) {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "mapping not found"})
	default:
		logger.FromGin(c).Error(fallbackMsg, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": fallbackMsg, "message": err.Error()})
	}
}

func isUploadBody(body []byte) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	_, ok := probe["csvContent"]
	return ok
}
