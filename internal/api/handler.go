// Package api exposes the attendance engines over HTTP.
package api

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"site-attendance-backend/internal/closure"
	"site-attendance-backend/internal/engine"
	"site-attendance-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store    store.Store
	checkIn  *engine.CheckInEngine
	checkOut *engine.CheckOutEngine
	closure  *closure.Aggregator
	webpush  *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, checkIn *engine.CheckInEngine, checkOut *engine.CheckOutEngine, agg *closure.Aggregator, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:    s,
		checkIn:  checkIn,
		checkOut: checkOut,
		closure:  agg,
		webpush:  webpushOptions,
	}
}

// idParam parses a positive int64 path parameter, writing the 400 itself on
// failure.
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a positive integer"})
		return 0, false
	}
	return id, true
}

// decodeImage decodes a base64 captured image, tolerating a data-URI prefix
// ("data:image/jpeg;base64,..."). An empty input decodes to nil.
func decodeImage(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, nil
	}
	if idx := strings.Index(encoded, ","); idx >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[idx+1:]
	}
	return base64.StdEncoding.DecodeString(encoded)
}

// writeEngineError maps the engine's error taxonomy onto HTTP status codes.
func writeEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrDuplicateCheckIn), errors.Is(err, engine.ErrDuplicateCheckOut):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrDenialLocked):
		c.JSON(http.StatusLocked, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
