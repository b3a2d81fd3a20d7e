package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mtehis/internal/model"
	"mtehis/internal/models"
	"mtehis/internal/toolset"
)

func newTrainFixture(t *testing.T) (*TrainingPipeline, *toolset.Registry, *fakeToolsetStore) {
	t.Helper()
	store := newFakeToolsetStore()
	seedTrainedToolset(t, store, "t1")
	registry := toolset.NewRegistry(store, zap.NewNop())
	return NewTrainingPipeline(registry, zap.NewNop()), registry, store
}

func drain(t *testing.T, events <-chan ProgressEvent) []ProgressEvent {
	t.Helper()
	var out []ProgressEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("training stream did not terminate")
		}
	}
}

func TestTrainStreamOrder(t *testing.T) {
	pipeline, _, store := newTrainFixture(t)

	events, err := pipeline.Train("t1", model.Dataset{{1, 2}, {2, 3}, {1, 3}}, nil, false)
	require.NoError(t, err)

	collected := drain(t, events)
	require.GreaterOrEqual(t, len(collected), 3)

	// Zero or more progress events with increasing iterations, then the
	// result, then the detector summary.
	last := 0
	for _, ev := range collected[:len(collected)-2] {
		require.Equal(t, EventProgress, ev.Type)
		assert.Greater(t, ev.Iteration, last)
		last = ev.Iteration
	}

	result := collected[len(collected)-2]
	require.Equal(t, EventResult, result.Type)
	require.NotNil(t, result.Result)
	assert.Equal(t, 5, result.Result.Iterations)
	assert.Equal(t, 3, result.Result.TrainSamples)

	detector := collected[len(collected)-1]
	require.Equal(t, EventDetector, detector.Type)
	require.NotNil(t, detector.Detector)
	assert.True(t, detector.Detector.Trained)

	assert.Equal(t, 1, store.saveCount())
}

func TestTrainVerboseMessages(t *testing.T) {
	pipeline, _, _ := newTrainFixture(t)

	events, err := pipeline.Train("t1", model.Dataset{{1, 2}, {2, 3}}, nil, true)
	require.NoError(t, err)

	for _, ev := range drain(t, events) {
		if ev.Type == EventProgress {
			assert.NotEmpty(t, ev.Message)
		}
	}
}

func TestTrainValidation(t *testing.T) {
	pipeline, _, _ := newTrainFixture(t)

	tests := []struct {
		name     string
		trainSet model.Dataset
		testSet  model.Dataset
	}{
		{name: "both datasets empty"},
		{name: "ragged train set", trainSet: model.Dataset{{1, 2}, {1}}},
		{name: "ragged test set", trainSet: model.Dataset{{1, 2}}, testSet: model.Dataset{{1, 2}, {1}}},
		{name: "train set width mismatch", trainSet: model.Dataset{{1, 2, 3}}},
		{name: "test set width mismatch", trainSet: model.Dataset{{1, 2}}, testSet: model.Dataset{{1, 2, 3}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pipeline.Train("t1", tt.trainSet, tt.testSet, false)
			var validationErr *toolset.ValidationError
			assert.ErrorAs(t, err, &validationErr)
		})
	}
}

func TestTrainUnknownToolset(t *testing.T) {
	pipeline, _, _ := newTrainFixture(t)

	_, err := pipeline.Train("missing", model.Dataset{{1, 2}}, nil, false)
	assert.ErrorIs(t, err, toolset.ErrToolsetNotFound)
}

func TestTrainConflict(t *testing.T) {
	pipeline, registry, _ := newTrainFixture(t)

	handle, err := registry.GetOrLoad("t1")
	require.NoError(t, err)
	_, err = handle.BeginEvaluation()
	require.NoError(t, err)

	_, err = pipeline.Train("t1", model.Dataset{{1, 2}}, nil, false)
	assert.ErrorIs(t, err, toolset.ErrEvaluationInProgress)
}

func TestTrainFaultEmitsError(t *testing.T) {
	store := newFakeToolsetStore()

	// An untrained detector evaluated without training data faults inside
	// the run, after the session has already been claimed.
	detector := model.NewLearningDetector(2, 5)
	blob, err := detector.Marshal()
	require.NoError(t, err)
	require.NoError(t, store.Create(&models.Toolset{Name: "raw", Detector: blob}))

	registry := toolset.NewRegistry(store, zap.NewNop())
	pipeline := NewTrainingPipeline(registry, zap.NewNop())

	events, err := pipeline.Train("raw", nil, model.Dataset{{1, 2}}, false)
	require.NoError(t, err)

	collected := drain(t, events)
	require.NotEmpty(t, collected)
	last := collected[len(collected)-1]
	assert.Equal(t, EventError, last.Type)
	assert.NotEmpty(t, last.Message)
	assert.Equal(t, 0, store.saveCount())
}

func TestTrainLongRunKeepsTerminalEvents(t *testing.T) {
	store := newFakeToolsetStore()
	detector := model.NewLearningDetector(2, 400)
	blob, err := detector.Marshal()
	require.NoError(t, err)
	require.NoError(t, store.Create(&models.Toolset{Name: "long", Detector: blob}))

	registry := toolset.NewRegistry(store, zap.NewNop())
	pipeline := NewTrainingPipeline(registry, zap.NewNop())

	events, err := pipeline.Train("long", model.Dataset{{1, 2}, {2, 3}}, nil, false)
	require.NoError(t, err)

	// Read nothing until the run is over, like a consumer that connects
	// late. The 400 progress events overflow the buffer; the terminal
	// events must still arrive.
	deadline := time.Now().Add(5 * time.Second)
	for {
		snapshot, err := pipeline.Status("long")
		require.NoError(t, err)
		if snapshot.Status == toolset.StatusFinished {
			break
		}
		require.True(t, time.Now().Before(deadline), "training run did not finish")
		time.Sleep(5 * time.Millisecond)
	}

	collected := drain(t, events)
	require.GreaterOrEqual(t, len(collected), 2)
	assert.LessOrEqual(t, len(collected), eventBuffer)

	result := collected[len(collected)-2]
	require.Equal(t, EventResult, result.Type)
	require.NotNil(t, result.Result)
	assert.Equal(t, 400, result.Result.Iterations)

	last := collected[len(collected)-1]
	require.Equal(t, EventDetector, last.Type)
	require.NotNil(t, last.Detector)
	assert.True(t, last.Detector.Trained)
}

func TestStatusLifecycle(t *testing.T) {
	pipeline, _, _ := newTrainFixture(t)

	snapshot, err := pipeline.Status("t1")
	require.NoError(t, err)
	assert.Equal(t, toolset.StatusNotStarted, snapshot.Status)
	assert.Nil(t, snapshot.Result)

	events, err := pipeline.Train("t1", model.Dataset{{1, 2}, {2, 3}}, nil, false)
	require.NoError(t, err)
	drain(t, events)

	snapshot, err = pipeline.Status("t1")
	require.NoError(t, err)
	assert.Equal(t, toolset.StatusFinished, snapshot.Status)
	assert.Equal(t, 5, snapshot.Iteration)
	require.NotNil(t, snapshot.Result)
	assert.Equal(t, 2, snapshot.Result.TrainSamples)
}

func TestStatusUnknownToolset(t *testing.T) {
	pipeline, _, _ := newTrainFixture(t)

	_, err := pipeline.Status("missing")
	assert.ErrorIs(t, err, toolset.ErrToolsetNotFound)
}
