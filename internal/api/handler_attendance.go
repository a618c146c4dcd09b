package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const defaultHistoryLimit = 50

// GetAttendanceHistory handles GET /api/labourers/:labourer_id/attendance.
func (h *Handler) GetAttendanceHistory(c *gin.Context) {
	labourerID, ok := idParam(c, "labourer_id")
	if !ok {
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	logs, err := h.store.AttendanceHistory(c.Request.Context(), labourerID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"labourer_id": labourerID,
		"count":       len(logs),
		"logs":        logs,
	})
}
