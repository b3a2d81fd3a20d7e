package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"mtehis/internal/model"
	"mtehis/internal/models"
	"mtehis/internal/repository"
	"mtehis/internal/toolset"
)

// ToolsetHandler handles the admin surface for creating and inspecting
// toolsets and for flushing the runtime cache.
type ToolsetHandler struct {
	toolsetRepo       repository.ToolsetRepository
	registry          *toolset.Registry
	defaultIterations int
	logger            *zap.Logger
}

func NewToolsetHandler(toolsetRepo repository.ToolsetRepository, registry *toolset.Registry, defaultIterations int, logger *zap.Logger) *ToolsetHandler {
	return &ToolsetHandler{
		toolsetRepo:       toolsetRepo,
		registry:          registry,
		defaultIterations: defaultIterations,
		logger:            logger,
	}
}

// CreateToolsetRequest describes a new toolset. ClassifierClasses is
// optional; when zero the toolset is created without a classifier and
// detection reports raw anomaly labels only.
type CreateToolsetRequest struct {
	Name              string `json:"name" binding:"required,max=32"`
	FeaturesCount     int    `json:"features_count" binding:"required,min=1"`
	ClassifierClasses int    `json:"classifier_classes" binding:"min=0"`
}

// Create registers a new toolset with a freshly initialized, untrained
// detector. The new record is written to the store but not loaded into
// the cache; the first detect or train call loads it.
// POST /api/toolsets
func (h *ToolsetHandler) Create(c *gin.Context) {
	var req CreateToolsetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, `request body must have "name" and "features_count" fields`)
		return
	}

	detector := model.NewLearningDetector(req.FeaturesCount, h.defaultIterations)
	detectorBlob, err := detector.Marshal()
	if err != nil {
		h.logger.Error("Failed to serialize new detector", zap.Error(err), zap.String("toolset", req.Name))
		respondError(c, http.StatusInternalServerError, "failed to initialize detector")
		return
	}

	var classifierBlob []byte
	if req.ClassifierClasses > 0 {
		classifier := model.NewCentroidClassifier(req.FeaturesCount, req.ClassifierClasses)
		classifierBlob, err = classifier.Marshal()
		if err != nil {
			h.logger.Error("Failed to serialize new classifier", zap.Error(err), zap.String("toolset", req.Name))
			respondError(c, http.StatusInternalServerError, "failed to initialize classifier")
			return
		}
	}

	record := &models.Toolset{
		Name:       req.Name,
		Detector:   detectorBlob,
		Classifier: classifierBlob,
	}
	if err := h.toolsetRepo.Create(record); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			respondError(c, http.StatusConflict, "toolset with this name already exists")
			return
		}
		h.logger.Error("Failed to create toolset", zap.Error(err), zap.String("toolset", req.Name))
		respondError(c, http.StatusInternalServerError, "failed to create toolset")
		return
	}

	h.logger.Info("Toolset created",
		zap.String("toolset", record.Name),
		zap.Int("features_count", req.FeaturesCount),
		zap.Int("classifier_classes", req.ClassifierClasses))

	respondSuccess(c, http.StatusCreated, toolsetView(record))
}

// List returns all stored toolsets without their model blobs.
// GET /api/toolsets
func (h *ToolsetHandler) List(c *gin.Context) {
	records, err := h.toolsetRepo.GetAll()
	if err != nil {
		h.logger.Error("Failed to list toolsets", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "failed to list toolsets")
		return
	}

	views := make([]gin.H, 0, len(records))
	for _, record := range records {
		views = append(views, toolsetView(record))
	}
	respondSuccess(c, http.StatusOK, views)
}

// Active returns the names of toolsets currently resident in the cache.
// GET /api/toolsets/active
func (h *ToolsetHandler) Active(c *gin.Context) {
	respondSuccess(c, http.StatusOK, h.registry.Active())
}

// Flush discards the runtime cache so that subsequent requests reload
// toolsets from the store.
// POST /api/toolsets/flush
func (h *ToolsetHandler) Flush(c *gin.Context) {
	h.registry.Flush()
	respondSuccess(c, http.StatusOK, gin.H{"flushed": true})
}

func toolsetView(record *models.Toolset) gin.H {
	return gin.H{
		"id":             record.ID,
		"name":           record.Name,
		"has_classifier": len(record.Classifier) > 0,
		"created_at":     record.CreatedAt,
	}
}
