package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mtehis/internal/model"
	"mtehis/internal/models"
	"mtehis/internal/repository"
	"mtehis/internal/toolset"
)

// DetectionPipeline is the stateless scoring orchestration: resolve the
// toolset handle, score the batch, persist flagged rows as anomaly
// records.
type DetectionPipeline struct {
	registry  *toolset.Registry
	anomalies repository.AnomalyRepository
	logger    *zap.Logger
}

// AnomalyView is an anomaly record with its stored vectors decoded.
type AnomalyView struct {
	ID               int64     `json:"id"`
	Toolset          string    `json:"toolset"`
	Inputs           []float64 `json:"inputs"`
	DetectorScores   []float64 `json:"detector_scores"`
	ClassifierScores []float64 `json:"classifier_scores,omitempty"`
	LabelID          *int64    `json:"label_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func NewDetectionPipeline(registry *toolset.Registry, anomalies repository.AnomalyRepository, logger *zap.Logger) *DetectionPipeline {
	return &DetectionPipeline{
		registry:  registry,
		anomalies: anomalies,
		logger:    logger,
	}
}

// Detect scores every row of the batch with the named toolset's detector
// and persists one anomaly record per flagged row. The full per-row label
// vector is always returned; a failed record write is logged and skipped
// so the remaining batch still gets scored and reported.
func (p *DetectionPipeline) Detect(name string, batch [][]float64) ([]int, error) {
	if err := validateBatch(batch); err != nil {
		return nil, err
	}

	handle, err := p.registry.GetOrLoad(name)
	if err != nil {
		return nil, err
	}
	if width := len(batch[0]); width != handle.FeatureCount() {
		return nil, &toolset.ValidationError{
			Reason: fmt.Sprintf("rows have %d features, toolset %q expects %d", width, name, handle.FeatureCount()),
		}
	}

	labels, scores, err := handle.Score(batch)
	if err != nil {
		return nil, fmt.Errorf("failed to score batch with toolset %q: %w", name, err)
	}

	for i, label := range labels {
		if label != model.LabelAnomalous {
			continue
		}

		inputs, err := json.Marshal(batch[i])
		if err != nil {
			p.logger.Error("Failed to encode anomaly inputs", zap.Error(err), zap.String("toolset", name), zap.Int("row", i))
			continue
		}
		detectorScores, err := json.Marshal([]float64{scores[i]})
		if err != nil {
			p.logger.Error("Failed to encode anomaly scores", zap.Error(err), zap.String("toolset", name), zap.Int("row", i))
			continue
		}

		record := &models.Anomaly{
			ToolsetID:      handle.ToolsetID(),
			Inputs:         inputs,
			DetectorScores: detectorScores,
		}
		if err := p.anomalies.SaveAnomaly(record); err != nil {
			// Scoring must still be reported even when a record write
			// fails, so log and move on to the next row.
			p.logger.Error("Failed to persist anomaly record", zap.Error(err), zap.String("toolset", name), zap.Int("row", i))
			continue
		}
	}

	return labels, nil
}

// Anomalies returns the stored anomaly records of a toolset, optionally
// restricted to a creation-time range. Both bounds are inclusive.
func (p *DetectionPipeline) Anomalies(name string, from, to *time.Time) ([]AnomalyView, error) {
	handle, err := p.registry.GetOrLoad(name)
	if err != nil {
		return nil, err
	}

	records, err := p.anomalies.GetByToolset(handle.ToolsetID(), from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query anomalies for toolset %q: %w", name, err)
	}

	views := make([]AnomalyView, 0, len(records))
	for _, record := range records {
		view := AnomalyView{
			ID:        record.ID,
			Toolset:   name,
			LabelID:   record.LabelID,
			CreatedAt: record.CreatedAt,
		}
		if err := json.Unmarshal(record.Inputs, &view.Inputs); err != nil {
			p.logger.Error("Failed to decode anomaly inputs", zap.Error(err), zap.Int64("anomaly_id", record.ID))
			continue
		}
		if err := json.Unmarshal(record.DetectorScores, &view.DetectorScores); err != nil {
			p.logger.Error("Failed to decode anomaly scores", zap.Error(err), zap.Int64("anomaly_id", record.ID))
			continue
		}
		if len(record.ClassifierScores) > 0 {
			if err := json.Unmarshal(record.ClassifierScores, &view.ClassifierScores); err != nil {
				p.logger.Error("Failed to decode classifier scores", zap.Error(err), zap.Int64("anomaly_id", record.ID))
			}
		}
		views = append(views, view)
	}
	return views, nil
}

// validateBatch rejects malformed batches before the registry is touched.
func validateBatch(batch [][]float64) error {
	if len(batch) == 0 {
		return &toolset.ValidationError{Reason: "data must contain at least one row"}
	}
	width := len(batch[0])
	if width == 0 {
		return &toolset.ValidationError{Reason: "rows must contain at least one feature"}
	}
	for i, row := range batch {
		if len(row) != width {
			return &toolset.ValidationError{
				Reason: fmt.Sprintf("row %d has %d features, row 0 has %d", i, len(row), width),
			}
		}
	}
	return nil
}
