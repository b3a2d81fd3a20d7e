package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	"mtehis/internal/model"
	"mtehis/internal/toolset"
)

// Progress event types emitted by a training run, in order: zero or more
// "progress" events, then either "result" followed by "detector", or a
// single "error".
const (
	EventProgress = "progress"
	EventResult   = "result"
	EventDetector = "detector"
	EventError    = "error"
)

// eventBuffer absorbs a full default-length run even when the consumer
// reads nothing, so an abandoned stream can never stall the evaluation.
// terminalSlots of it are reserved for the closing result and detector
// (or error) events, which are never dropped.
const (
	eventBuffer   = 256
	terminalSlots = 2
)

// ProgressEvent is one element of a training progress stream.
type ProgressEvent struct {
	Type      string                  `json:"type"`
	Iteration int                     `json:"iteration,omitempty"`
	Message   string                  `json:"message,omitempty"`
	Result    *model.EvaluationResult `json:"result,omitempty"`
	Detector  *model.DetectorInfo     `json:"detector,omitempty"`
}

// TrainingPipeline orchestrates evaluation runs: resolve the handle, claim
// its evaluation slot, drive the blocking fit in a worker goroutine and
// stream progress events to the caller.
type TrainingPipeline struct {
	registry *toolset.Registry
	logger   *zap.Logger
}

func NewTrainingPipeline(registry *toolset.Registry, logger *zap.Logger) *TrainingPipeline {
	return &TrainingPipeline{registry: registry, logger: logger}
}

// Train starts an evaluation of the named toolset and returns a finite,
// ordered stream of progress events terminating in the evaluation result
// and a representation of the updated detector state. Not-found, validation
// and conflict errors are returned synchronously, before any stream exists.
//
// The stream's consumer cannot cancel the evaluation: once claimed, the
// run proceeds to completion (and persistence) regardless of whether the
// events are drained. Progress events beyond the buffer's headroom are
// dropped; the terminal result and detector (or error) events are always
// delivered, and the final state stays available through Status.
func (p *TrainingPipeline) Train(name string, trainSet, testSet model.Dataset, verbose bool) (<-chan ProgressEvent, error) {
	if len(trainSet) == 0 && len(testSet) == 0 {
		return nil, &toolset.ValidationError{Reason: "at least one of train_data and test_data must be supplied"}
	}
	for _, ds := range []model.Dataset{trainSet, testSet} {
		if len(ds) == 0 {
			continue
		}
		if err := validateBatch(ds); err != nil {
			return nil, err
		}
	}

	handle, err := p.registry.GetOrLoad(name)
	if err != nil {
		return nil, err
	}
	for _, ds := range []model.Dataset{trainSet, testSet} {
		if len(ds) == 0 {
			continue
		}
		if width := len(ds[0]); width != handle.FeatureCount() {
			return nil, &toolset.ValidationError{
				Reason: fmt.Sprintf("rows have %d features, toolset %q expects %d", width, name, handle.FeatureCount()),
			}
		}
	}

	sess, err := handle.BeginEvaluation()
	if err != nil {
		return nil, err
	}

	events := make(chan ProgressEvent, eventBuffer)
	// Only this goroutine sends, so the headroom check cannot race into a
	// blocking send: the terminal events below always have room and are
	// delivered even to a consumer that starts reading after the run.
	emitProgress := func(ev ProgressEvent) {
		if len(events) >= eventBuffer-terminalSlots {
			p.logger.Warn("Dropping training progress event, stream consumer too slow",
				zap.String("toolset", name), zap.Int("iteration", ev.Iteration))
			return
		}
		events <- ev
	}

	go func() {
		defer close(events)

		onProgress := func(iteration int) {
			ev := ProgressEvent{Type: EventProgress, Iteration: iteration}
			if verbose {
				ev.Message = fmt.Sprintf("toolset %s: iteration %d", name, iteration)
			}
			emitProgress(ev)
		}

		result, err := handle.RunEvaluation(sess, toolset.EvaluationOptions{
			TrainSet:   trainSet,
			TestSet:    testSet,
			Persist:    true,
			OnProgress: onProgress,
		})
		if err != nil {
			p.logger.Error("Training run failed", zap.Error(err), zap.String("toolset", name))
			events <- ProgressEvent{Type: EventError, Message: err.Error()}
			return
		}

		events <- ProgressEvent{Type: EventResult, Result: result}
		info := handle.DetectorInfo()
		events <- ProgressEvent{Type: EventDetector, Detector: &info}
	}()

	return events, nil
}

// Status reports the named toolset's current evaluation session: status,
// iteration and result. A toolset that never had an evaluation reports
// the "not started" status.
func (p *TrainingPipeline) Status(name string) (toolset.SessionSnapshot, error) {
	handle, err := p.registry.GetOrLoad(name)
	if err != nil {
		return toolset.SessionSnapshot{}, err
	}

	sess := handle.CurrentEvaluation()
	if sess == nil {
		return toolset.SessionSnapshot{Status: toolset.StatusNotStarted}, nil
	}
	return sess.Snapshot(), nil
}
