package toolset

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mtehis/internal/model"
)

func trainedHandle(t *testing.T, store *fakeStore) *Handle {
	t.Helper()
	detector := model.NewLearningDetector(2, 5)
	_, err := detector.Evaluate(model.Dataset{{1, 2}, {2, 3}, {1, 3}, {2, 2}, {1, 2}}, nil, nil)
	require.NoError(t, err)
	detector.SetThreshold(0.9)
	return NewHandle(1, "t1", detector, nil, store, zap.NewNop())
}

func TestScore(t *testing.T) {
	handle := trainedHandle(t, newFakeStore())

	labels, scores, err := handle.Score([][]float64{{1, 2}, {20, 3}})
	require.NoError(t, err)
	assert.Equal(t, []int{model.LabelNormal, model.LabelAnomalous}, labels)
	require.Len(t, scores, 2)
	assert.Greater(t, scores[1], scores[0])
}

func TestCurrentEvaluationInitiallyNil(t *testing.T) {
	handle := trainedHandle(t, newFakeStore())
	assert.Nil(t, handle.CurrentEvaluation())
}

func TestBeginEvaluationConflict(t *testing.T) {
	handle := trainedHandle(t, newFakeStore())

	sess, err := handle.BeginEvaluation()
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, sess.Status())

	_, err = handle.BeginEvaluation()
	assert.ErrorIs(t, err, ErrEvaluationInProgress)

	sess.finish(nil)
	next, err := handle.BeginEvaluation()
	require.NoError(t, err)
	assert.NotSame(t, sess, next)
}

func TestBeginEvaluationConcurrent(t *testing.T) {
	handle := trainedHandle(t, newFakeStore())

	const workers = 16
	var claimed sync.Map
	var start, done sync.WaitGroup
	start.Add(1)
	done.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer done.Done()
			start.Wait()
			if _, err := handle.BeginEvaluation(); err == nil {
				claimed.Store(i, true)
			}
		}(i)
	}
	start.Done()
	done.Wait()

	winners := 0
	claimed.Range(func(_, _ interface{}) bool {
		winners++
		return true
	})
	assert.Equal(t, 1, winners)
}

func TestRunEvaluationSuccess(t *testing.T) {
	store := newFakeStore()
	handle := trainedHandle(t, store)

	var progressCalls int
	sess, err := handle.BeginEvaluation()
	require.NoError(t, err)

	result, err := handle.RunEvaluation(sess, EvaluationOptions{
		TrainSet:   model.Dataset{{1, 2}, {2, 3}, {1, 3}},
		Persist:    true,
		OnProgress: func(int) { progressCalls++ },
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 5, result.Iterations)
	assert.Equal(t, 5, progressCalls)

	snapshot := sess.Snapshot()
	assert.Equal(t, StatusFinished, snapshot.Status)
	assert.Equal(t, 5, snapshot.Iteration)
	assert.Equal(t, result, snapshot.Result)

	require.Equal(t, 1, store.saveCount())
	assert.NotEmpty(t, store.saves[0].Detector)
	assert.Equal(t, int64(1), store.saves[0].ID)
}

func TestRunEvaluationFault(t *testing.T) {
	handle := trainedHandle(t, newFakeStore())

	sess, err := handle.BeginEvaluation()
	require.NoError(t, err)

	// Ragged training data makes the fit fail.
	_, err = handle.RunEvaluation(sess, EvaluationOptions{
		TrainSet: model.Dataset{{1, 2}, {1, 2, 3}},
	})
	require.Error(t, err)

	snapshot := sess.Snapshot()
	assert.Equal(t, StatusFinished, snapshot.Status)
	assert.Nil(t, snapshot.Result)

	// The slot is free again after a fault.
	_, err = handle.BeginEvaluation()
	assert.NoError(t, err)
}

func TestRunEvaluationWithoutPersist(t *testing.T) {
	store := newFakeStore()
	handle := trainedHandle(t, store)

	sess, err := handle.BeginEvaluation()
	require.NoError(t, err)
	_, err = handle.RunEvaluation(sess, EvaluationOptions{
		TrainSet: model.Dataset{{1, 2}, {2, 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, store.saveCount())
}

func TestStartEvaluation(t *testing.T) {
	store := newFakeStore()
	handle := trainedHandle(t, store)

	sess, err := handle.StartEvaluation(EvaluationOptions{
		TrainSet: model.Dataset{{1, 2}, {2, 3}},
		Persist:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, sess.Status())
	assert.Equal(t, 1, store.saveCount())
	assert.Same(t, sess, handle.CurrentEvaluation())
}

func TestRunEvaluationPersistFailure(t *testing.T) {
	store := newFakeStore()
	store.saveErr = assert.AnError
	handle := trainedHandle(t, store)

	sess, err := handle.BeginEvaluation()
	require.NoError(t, err)
	result, err := handle.RunEvaluation(sess, EvaluationOptions{
		TrainSet: model.Dataset{{1, 2}, {2, 3}},
		Persist:  true,
	})

	// The run itself succeeded; the persistence failure is surfaced but the
	// session keeps its result.
	require.Error(t, err)
	assert.NotNil(t, result)
	assert.Equal(t, StatusFinished, sess.Status())
	assert.NotNil(t, sess.Snapshot().Result)
}
