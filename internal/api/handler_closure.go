package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// PostClosureRun handles POST /api/closure/run. The optional date query
// parameter (YYYY-MM-DD) defaults to today; the run is idempotent, so
// re-triggering a closed date reports the existing closure.
func (h *Handler) PostClosureRun(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be formatted YYYY-MM-DD"})
		return
	}

	summary, err := h.closure.RunForDate(c.Request.Context(), date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summary)
}
