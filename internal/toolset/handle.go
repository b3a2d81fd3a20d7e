package toolset

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"mtehis/internal/model"
	"mtehis/internal/models"
	"mtehis/internal/repository"
)

// Handle is the in-memory representation of one loaded toolset: the live
// detector, the optional live classifier and the current evaluation
// session. Handles are created by the Registry and stay resident until a
// flush or process restart; there is no eviction.
type Handle struct {
	toolsetID int64
	name      string
	store     repository.ToolsetRepository
	logger    *zap.Logger

	// mu guards the session pointer. Scoring is deliberately not excluded
	// against a running evaluation; reads against mid-update model state
	// are accepted as best-effort.
	mu         sync.Mutex
	detector   model.Detector
	classifier model.Classifier
	session    *Session
}

// EvaluationOptions configures one evaluation run.
type EvaluationOptions struct {
	TrainSet model.Dataset
	TestSet  model.Dataset

	// Persist writes the updated serialized state back to the store after
	// a successful run, fully replacing the prior record.
	Persist bool

	// OnProgress is invoked once per fit iteration, after the session's
	// own iteration counter has been advanced.
	OnProgress func(iteration int)
}

// NewHandle wraps live model objects for a stored toolset.
func NewHandle(toolsetID int64, name string, detector model.Detector, classifier model.Classifier, store repository.ToolsetRepository, logger *zap.Logger) *Handle {
	return &Handle{
		toolsetID:  toolsetID,
		name:       name,
		detector:   detector,
		classifier: classifier,
		store:      store,
		logger:     logger,
	}
}

func (h *Handle) ToolsetID() int64 { return h.toolsetID }

func (h *Handle) Name() string { return h.name }

// FeatureCount returns the dimensionality the detector expects.
func (h *Handle) FeatureCount() int {
	return h.detector.FeatureCount()
}

// HasClassifier reports whether a classifier is loaded for this toolset.
func (h *Handle) HasClassifier() bool {
	return h.classifier != nil
}

// DetectorInfo returns the API-facing representation of the detector.
func (h *Handle) DetectorInfo() model.DetectorInfo {
	return h.detector.Info()
}

// Score delegates to the detector. Pure read path: no model state is
// mutated, and calls are safe while an evaluation session is processing.
func (h *Handle) Score(batch [][]float64) ([]int, []float64, error) {
	return h.detector.PredictWithScores(batch)
}

// BeginEvaluation atomically claims the handle's evaluation slot. It fails
// with ErrEvaluationInProgress when the current session is still
// processing; otherwise it installs a fresh Session already transitioned
// to processing and returns it. The check and the transition happen under
// one lock so two concurrent callers can never both proceed.
func (h *Handle) BeginEvaluation() (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.session != nil && h.session.Status() == StatusProcessing {
		return nil, ErrEvaluationInProgress
	}

	sess := newSession()
	sess.begin()
	h.session = sess
	return sess, nil
}

// RunEvaluation drives the detector's fit/evaluate cycle for a session
// obtained from BeginEvaluation. It blocks until the run completes. On a
// model fault the session is finished with a nil result and the error is
// returned; the toolset is never left locked in processing. When
// opts.Persist is set the updated state is written back to the store after
// the run, with the serialized copies taken before any I/O so no lock is
// held for the store write.
func (h *Handle) RunEvaluation(sess *Session, opts EvaluationOptions) (*model.EvaluationResult, error) {
	progress := func(iteration int) {
		sess.advance(iteration)
		if opts.OnProgress != nil {
			opts.OnProgress(iteration)
		}
	}

	result, err := h.detector.Evaluate(opts.TrainSet, opts.TestSet, progress)
	if err != nil {
		sess.finish(nil)
		return nil, fmt.Errorf("detector evaluation failed: %w", err)
	}
	sess.finish(result)

	h.logger.Info("Evaluation finished",
		zap.String("toolset", h.name),
		zap.Int("iterations", result.Iterations),
		zap.Float64("anomaly_rate", result.AnomalyRate))

	if opts.Persist {
		if err := h.persist(); err != nil {
			return result, err
		}
	}
	return result, nil
}

// StartEvaluation claims the evaluation slot and synchronously runs the
// evaluation. Convenience wrapper over BeginEvaluation + RunEvaluation.
func (h *Handle) StartEvaluation(opts EvaluationOptions) (*Session, error) {
	sess, err := h.BeginEvaluation()
	if err != nil {
		return nil, err
	}
	if _, err := h.RunEvaluation(sess, opts); err != nil {
		return sess, err
	}
	return sess, nil
}

// CurrentEvaluation returns the latest session, or nil if no evaluation
// was ever started for this handle.
func (h *Handle) CurrentEvaluation() *Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.session
}

// persist serializes the current model state and fully replaces the stored
// record. State is copied out up front; the store write runs without any
// handle lock held.
func (h *Handle) persist() error {
	detectorBlob, err := h.detector.Marshal()
	if err != nil {
		return fmt.Errorf("failed to serialize detector for toolset %q: %w", h.name, err)
	}

	var classifierBlob []byte
	if h.classifier != nil {
		classifierBlob, err = h.classifier.Marshal()
		if err != nil {
			return fmt.Errorf("failed to serialize classifier for toolset %q: %w", h.name, err)
		}
	}

	record := &models.Toolset{
		ID:         h.toolsetID,
		Name:       h.name,
		Detector:   detectorBlob,
		Classifier: classifierBlob,
	}
	if err := h.store.Save(record); err != nil {
		return fmt.Errorf("failed to persist toolset %q: %w", h.name, err)
	}

	h.logger.Info("Toolset state persisted", zap.String("toolset", h.name), zap.Int("detector_bytes", len(detectorBlob)))
	return nil
}
