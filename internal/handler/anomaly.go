package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mtehis/internal/models"
	"mtehis/internal/pipeline"
	"mtehis/internal/repository"
	"mtehis/internal/toolset"
)

// AnomalyHandler handles anomaly history queries, manual labeling and the
// anomaly class taxonomy.
type AnomalyHandler struct {
	pipeline    *pipeline.DetectionPipeline
	anomalyRepo repository.AnomalyRepository
	registry    *toolset.Registry
	logger      *zap.Logger
}

func NewAnomalyHandler(pipeline *pipeline.DetectionPipeline, anomalyRepo repository.AnomalyRepository, registry *toolset.Registry, logger *zap.Logger) *AnomalyHandler {
	return &AnomalyHandler{
		pipeline:    pipeline,
		anomalyRepo: anomalyRepo,
		registry:    registry,
		logger:      logger,
	}
}

// ListAnomalies returns stored anomaly records for a toolset, optionally
// restricted to an inclusive creation-time range.
// GET /api/anomalies?toolset=<name>&from=<rfc3339>&to=<rfc3339>
func (h *AnomalyHandler) ListAnomalies(c *gin.Context) {
	name := c.Query("toolset")
	if name == "" {
		respondError(c, http.StatusBadRequest, `query must have a "toolset" parameter`)
		return
	}

	from, err := parseTimeParam(c.Query("from"))
	if err != nil {
		respondError(c, http.StatusBadRequest, `"from" must be an RFC3339 timestamp`)
		return
	}
	to, err := parseTimeParam(c.Query("to"))
	if err != nil {
		respondError(c, http.StatusBadRequest, `"to" must be an RFC3339 timestamp`)
		return
	}

	views, err := h.pipeline.Anomalies(name, from, to)
	if err != nil {
		if errors.Is(err, toolset.ErrToolsetNotFound) {
			respondError(c, http.StatusNotFound, "toolset not found")
			return
		}
		h.logger.Error("Failed to query anomalies", zap.Error(err), zap.String("toolset", name))
		respondError(c, http.StatusInternalServerError, "failed to query anomalies")
		return
	}

	respondSuccess(c, http.StatusOK, views)
}

// LabelAnomaly assigns an anomaly class to a stored record.
// POST /api/anomalies/:id/label
func (h *AnomalyHandler) LabelAnomaly(c *gin.Context) {
	anomalyID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid anomaly ID")
		return
	}

	var req struct {
		ClassID int64 `json:"class_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, `request body must have a "class_id" field`)
		return
	}

	if err := h.anomalyRepo.LabelAnomaly(anomalyID, req.ClassID); err != nil {
		h.logger.Error("Failed to label anomaly", zap.Error(err), zap.Int64("anomaly_id", anomalyID))
		respondError(c, http.StatusInternalServerError, "failed to label anomaly")
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"anomaly_id": anomalyID, "class_id": req.ClassID})
}

// CreateClass adds an anomaly class to the taxonomy.
// POST /api/anomaly-classes
func (h *AnomalyHandler) CreateClass(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required,max=32"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, `request body must have a "name" field`)
		return
	}

	class := &models.AnomalyClass{Name: req.Name}
	if err := h.anomalyRepo.CreateClass(class); err != nil {
		h.logger.Error("Failed to create anomaly class", zap.Error(err), zap.String("name", req.Name))
		respondError(c, http.StatusInternalServerError, "failed to create anomaly class")
		return
	}

	respondSuccess(c, http.StatusCreated, class)
}

// ListClasses returns the anomaly class taxonomy.
// GET /api/anomaly-classes
func (h *AnomalyHandler) ListClasses(c *gin.Context) {
	classes, err := h.anomalyRepo.GetClasses()
	if err != nil {
		h.logger.Error("Failed to list anomaly classes", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "failed to list anomaly classes")
		return
	}
	respondSuccess(c, http.StatusOK, classes)
}

// SetClassMapping binds a classifier output index to an anomaly class for
// one toolset.
// PUT /api/toolsets/:name/class-mappings
func (h *AnomalyHandler) SetClassMapping(c *gin.Context) {
	handle, err := h.registry.GetOrLoad(c.Param("name"))
	if err != nil {
		if errors.Is(err, toolset.ErrToolsetNotFound) {
			respondError(c, http.StatusNotFound, "toolset not found")
			return
		}
		h.logger.Error("Failed to resolve toolset", zap.Error(err), zap.String("toolset", c.Param("name")))
		respondError(c, http.StatusInternalServerError, "failed to resolve toolset")
		return
	}

	var req struct {
		Index   int   `json:"index" binding:"min=0"`
		ClassID int64 `json:"class_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, `request body must have "index" and "class_id" fields`)
		return
	}

	mapping := &models.AnomalyClassMapping{
		ToolsetID:      handle.ToolsetID(),
		Index:          req.Index,
		AnomalyClassID: &req.ClassID,
	}
	if err := h.anomalyRepo.SetClassMapping(mapping); err != nil {
		h.logger.Error("Failed to set class mapping", zap.Error(err), zap.String("toolset", handle.Name()), zap.Int("index", req.Index))
		respondError(c, http.StatusInternalServerError, "failed to set class mapping")
		return
	}

	respondSuccess(c, http.StatusOK, mapping)
}

// ListClassMappings returns the index-to-class bindings of a toolset.
// GET /api/toolsets/:name/class-mappings
func (h *AnomalyHandler) ListClassMappings(c *gin.Context) {
	handle, err := h.registry.GetOrLoad(c.Param("name"))
	if err != nil {
		if errors.Is(err, toolset.ErrToolsetNotFound) {
			respondError(c, http.StatusNotFound, "toolset not found")
			return
		}
		h.logger.Error("Failed to resolve toolset", zap.Error(err), zap.String("toolset", c.Param("name")))
		respondError(c, http.StatusInternalServerError, "failed to resolve toolset")
		return
	}

	mappings, err := h.anomalyRepo.GetClassMappings(handle.ToolsetID())
	if err != nil {
		h.logger.Error("Failed to list class mappings", zap.Error(err), zap.String("toolset", handle.Name()))
		respondError(c, http.StatusInternalServerError, "failed to list class mappings")
		return
	}

	respondSuccess(c, http.StatusOK, mappings)
}

func parseTimeParam(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
