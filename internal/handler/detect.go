package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mtehis/internal/pipeline"
	"mtehis/internal/toolset"
)

// DetectHandler handles anomaly detection requests.
type DetectHandler struct {
	pipeline *pipeline.DetectionPipeline
	logger   *zap.Logger
}

func NewDetectHandler(pipeline *pipeline.DetectionPipeline, logger *zap.Logger) *DetectHandler {
	return &DetectHandler{pipeline: pipeline, logger: logger}
}

// DetectRequest is a scoring request: a toolset name and an ordered batch
// of feature vectors of uniform dimensionality.
type DetectRequest struct {
	Toolset string      `json:"toolset" binding:"required"`
	Data    [][]float64 `json:"data" binding:"required"`
}

// Detect scores a batch and returns the per-row label vector.
// POST /api/detect
func (h *DetectHandler) Detect(c *gin.Context) {
	var req DetectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, `request body must have "toolset" and "data" fields`)
		return
	}

	labels, err := h.pipeline.Detect(req.Toolset, req.Data)
	if err != nil {
		h.respondDetectError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, labels)
}

func (h *DetectHandler) respondDetectError(c *gin.Context, err error) {
	var validationErr *toolset.ValidationError
	switch {
	case errors.As(err, &validationErr):
		respondError(c, http.StatusBadRequest, validationErr.Error())
	case errors.Is(err, toolset.ErrToolsetNotFound):
		respondError(c, http.StatusNotFound, "toolset not found")
	default:
		h.logger.Error("Detection failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "failed to run detection")
	}
}
