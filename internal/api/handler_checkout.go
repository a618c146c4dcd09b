package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"site-attendance-backend/internal/engine"
	"site-attendance-backend/internal/model"
)

type checkOutRequest struct {
	ProjectID     int64    `json:"project_id" binding:"required"`
	Latitude      *float64 `json:"latitude" binding:"required"`
	Longitude     *float64 `json:"longitude" binding:"required"`
	Accuracy      *float64 `json:"accuracy"`
	CapturedImage string   `json:"captured_image"`
}

// PostCheckOut handles POST /api/labourers/:labourer_id/checkout.
func (h *Handler) PostCheckOut(c *gin.Context) {
	labourerID, ok := idParam(c, "labourer_id")
	if !ok {
		return
	}

	var req checkOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	image, err := decodeImage(req.CapturedImage)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "captured_image is not valid base64"})
		return
	}

	result, err := h.checkOut.CheckOut(c.Request.Context(), engine.CheckOutRequest{
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

	status := http.StatusOK
	if !result.Success {
		status = http.StatusForbidden
	}
	c.JSON(status, result)
}

type stageRequest struct {
	Status          string `json:"status" binding:"required"`
	Actor           string `json:"actor" binding:"required"`
	Notes           string `json:"notes"`
	Photo           string `json:"photo"`
	ApproveOvertime bool   `json:"approve_overtime"`
	OvertimeRemarks string `json:"overtime_remarks"`
}

// PostStage handles POST /api/checkouts/:check_out_id/stages/:stage.
func (h *Handler) PostStage(c *gin.Context) {
	checkOutID, ok := idParam(c, "check_out_id")
	if !ok {
		return
	}

	stage := engine.Stage(c.Param("stage"))
	if stage != engine.StageSupervisor && stage != engine.StageSecurity {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stage must be supervisor or security"})
		return
	}

	var req stageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	photo, err := decodeImage(req.Photo)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo is not valid base64"})
		return
	}

	result, err := h.checkOut.ApplyStage(c.Request.Context(), checkOutID, stage, engine.StageAction{
		Status:          model.StageStatus(req.Status),
		Actor:           req.Actor,
		Notes:           req.Notes,
		Photo:           photo,
		ApproveOvertime: req.ApproveOvertime,
		OvertimeRemarks: req.OvertimeRemarks,
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
