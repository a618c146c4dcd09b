package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"site-attendance-backend/internal/engine"
)

type checkInRequest struct {
	ProjectID     int64    `json:"project_id" binding:"required"`
	Latitude      *float64 `json:"latitude" binding:"required"`
	Longitude     *float64 `json:"longitude" binding:"required"`
	Accuracy      *float64 `json:"accuracy"`
	CapturedImage string   `json:"captured_image"`
}

// PostCheckIn handles POST /api/labourers/:labourer_id/checkin.
func (h *Handler) PostCheckIn(c *gin.Context) {
	labourerID, ok := idParam(c, "labourer_id")
	if !ok {
		return
	}

	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	image, err := decodeImage(req.CapturedImage)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "captured_image is not valid base64"})
		return
	}

	result, err := h.checkIn.CheckIn(c.Request.Context(), engine.CheckInRequest{
		LabourerID:    labourerID,
		ProjectID:     req.ProjectID,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		Accuracy:      req.Accuracy,
		CapturedImage: image,
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}

	// Denials are structured outcomes, not transport errors.
	status := http.StatusOK
	if !result.Success {
		status = http.StatusForbidden
	}
	c.JSON(status, result)
}

type resolveRequest struct {
	Action   string `json:"action" binding:"required"`
	Resolver string `json:"resolver" binding:"required"`
}

// PostResolveDenial handles POST /api/checkins/:attempt_id/resolve.
func (h *Handler) PostResolveDenial(c *gin.Context) {
	attemptID, ok := idParam(c, "attempt_id")
	if !ok {
		return
	}

	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.checkIn.ResolveDenial(c.Request.Context(), attemptID, engine.ResolveAction(req.Action), req.Resolver)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
