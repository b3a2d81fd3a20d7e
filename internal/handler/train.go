package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mtehis/internal/pipeline"
	"mtehis/internal/toolset"
)

// TrainHandler handles training requests and training status queries.
type TrainHandler struct {
	pipeline *pipeline.TrainingPipeline
	logger   *zap.Logger
}

func NewTrainHandler(pipeline *pipeline.TrainingPipeline, logger *zap.Logger) *TrainHandler {
	return &TrainHandler{pipeline: pipeline, logger: logger}
}

// TrainRequest is a retraining request for one toolset. Both datasets are
// optional but at least one must be supplied.
type TrainRequest struct {
	Toolset   string      `json:"toolset" binding:"required"`
	TrainData [][]float64 `json:"train_data"`
	TestData  [][]float64 `json:"test_data"`
	Verbose   bool        `json:"verbose"`
}

// Train runs an evaluation and streams progress as newline-delimited JSON,
// terminating with the evaluation result and the updated detector state.
// Conflicts and unknown toolsets are rejected with an envelope before any
// streaming starts.
// POST /api/train
func (h *TrainHandler) Train(c *gin.Context) {
	var req TrainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, `request body must have a "toolset" field`)
		return
	}

	events, err := h.pipeline.Train(req.Toolset, req.TrainData, req.TestData, req.Verbose)
	if err != nil {
		h.respondTrainError(c, err)
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Status(http.StatusOK)
	c.Stream(func(w io.Writer) bool {
		event, ok := <-events
		if !ok {
			return false
		}
		if err := json.NewEncoder(w).Encode(event); err != nil {
			h.logger.Warn("Failed to write training progress event", zap.Error(err), zap.String("toolset", req.Toolset))
			// Keep draining: an abandoned consumer must not stop the run.
			return true
		}
		return true
	})
}

// Status reports the toolset's current evaluation session.
// GET /api/train/:toolset/status
func (h *TrainHandler) Status(c *gin.Context) {
	snapshot, err := h.pipeline.Status(c.Param("toolset"))
	if err != nil {
		h.respondTrainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, snapshot)
}

func (h *TrainHandler) respondTrainError(c *gin.Context, err error) {
	var validationErr *toolset.ValidationError
	switch {
	case errors.As(err, &validationErr):
		respondError(c, http.StatusBadRequest, validationErr.Error())
	case errors.Is(err, toolset.ErrToolsetNotFound):
		respondError(c, http.StatusNotFound, "toolset not found")
	case errors.Is(err, toolset.ErrEvaluationInProgress):
		respondError(c, http.StatusConflict, "evaluation already in progress, poll status before retrying")
	default:
		h.logger.Error("Training request failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "failed to start training")
	}
}
