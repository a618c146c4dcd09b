package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"site-attendance-backend/internal/model"
	"site-attendance-backend/internal/parse"
)

type putBoundaryRequest struct {
	// BoundaryCoordinates accepts either the JSON pair/object forms directly
	// or a quoted string in one of the text formats parse.ParseBoundary
	// understands. Boundary is an accepted alias for older clients.
	BoundaryCoordinates json.RawMessage `json:"boundary_coordinates"`
	Boundary            json.RawMessage `json:"boundary"`
}

// PutBoundary handles PUT /api/projects/:project_id/boundary.
func (h *Handler) PutBoundary(c *gin.Context) {
	projectID, ok := idParam(c, "project_id")
	if !ok {
		return
	}

	var req putBoundaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	coords := req.BoundaryCoordinates
	if len(coords) == 0 {
		coords = req.Boundary
	}
	if len(coords) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "boundary_coordinates is required"})
		return
	}

	raw := string(coords)
	var asString string
	if err := json.Unmarshal(coords, &asString); err == nil {
		raw = asString
	}

	points, err := parse.ParseBoundary(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(points) < 3 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "boundary requires at least 3 points"})
		return
	}

	project, err := h.store.UpdateProjectBoundary(c.Request.Context(), projectID, model.Boundary(points))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"project_id":           project.ID,
		"boundary_coordinates": project.BoundaryCoordinates,
	})
}

// GetGeofence handles GET /api/projects/:project_id/geofence.
func (h *Handler) GetGeofence(c *gin.Context) {
	projectID, ok := idParam(c, "project_id")
	if !ok {
		return
	}

	project, err := h.store.GetProject(c.Request.Context(), projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"project_id":              project.ID,
		"name":                    project.Name,
		"boundary_coordinates":    project.BoundaryCoordinates,
		"has_boundary":            project.HasBoundary(),
		"timezone":                project.Timezone,
		"operating_start":         project.OperatingStart,
		"operating_end":           project.OperatingEnd,
		"auto_checkout_time":      project.AutoCheckoutTime,
		"identity_check_required": project.IdentityCheckRequired,
	})
}
