package model

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

const detectorKind = "learning-detector"

// learningDetectorState is the serialized form of a LearningDetector.
type learningDetectorState struct {
	FeatureCount  int
	Iterations    int
	Contamination float64
	Mean          []float64
	Scale         []float64
	Threshold     float64
	Trained       bool
}

// LearningDetector scores samples by their largest per-feature deviation
// from the statistics learned during fitting. Fitting runs a fixed number
// of refinement iterations so callers can observe training progress.
type LearningDetector struct {
	mu    sync.RWMutex
	state learningDetectorState
}

// NewLearningDetector creates an untrained detector for the given input
// dimensionality. iterations controls how many refinement passes a fit
// performs.
func NewLearningDetector(featureCount, iterations int) *LearningDetector {
	if iterations <= 0 {
		iterations = 200
	}
	return &LearningDetector{
		state: learningDetectorState{
			FeatureCount:  featureCount,
			Iterations:    iterations,
			Contamination: 0.05,
			Threshold:     0.9,
		},
	}
}

// UnmarshalDetector deserializes a detector from its stored blob.
func UnmarshalDetector(data []byte) (*LearningDetector, error) {
	var state learningDetectorState
	dec := gob.NewDecoder(bytes.NewBuffer(data))
	if err := dec.Decode(&state); err != nil {
		return nil, fmt.Errorf("failed to decode detector state: %w", err)
	}
	if state.FeatureCount <= 0 {
		return nil, errors.New("decoded detector state has no features")
	}
	return &LearningDetector{state: state}, nil
}

// FeatureCount returns the expected dimensionality of input rows.
func (d *LearningDetector) FeatureCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state.FeatureCount
}

// Predict returns a per-row label for the batch.
func (d *LearningDetector) Predict(batch [][]float64) ([]int, error) {
	labels, _, err := d.PredictWithScores(batch)
	return labels, err
}

// PredictWithScores returns per-row labels and anomaly scores. The read
// path never mutates detector state and may run while a fit is in
// progress; it scores against the last committed state.
func (d *LearningDetector) PredictWithScores(batch [][]float64) ([]int, []float64, error) {
	d.mu.RLock()
	state := d.state
	d.mu.RUnlock()

	return state.predictWithScores(batch)
}

func (s *learningDetectorState) predictWithScores(batch [][]float64) ([]int, []float64, error) {
	if !s.Trained {
		return nil, nil, errors.New("detector not trained")
	}

	labels := make([]int, len(batch))
	scores := make([]float64, len(batch))
	for i, row := range batch {
		if len(row) != s.FeatureCount {
			return nil, nil, fmt.Errorf("row %d has %d features, expected %d", i, len(row), s.FeatureCount)
		}
		scores[i] = s.score(row)
		if scores[i] > s.Threshold {
			labels[i] = LabelAnomalous
		} else {
			labels[i] = LabelNormal
		}
	}
	return labels, scores, nil
}

// score maps the largest normalized per-feature deviation into [0, 1).
func (s *learningDetectorState) score(row []float64) float64 {
	var raw float64
	for j, v := range row {
		dev := math.Abs(v-s.Mean[j]) / s.Scale[j]
		if dev > raw {
			raw = dev
		}
	}
	return raw / (1 + raw)
}

// Evaluate fits the detector on train (when supplied) and evaluates on
// test, falling back to train when test is empty. The fit builds a fresh
// state and commits it atomically at the end, so concurrent scoring is
// never blocked for the duration of a run.
func (d *LearningDetector) Evaluate(train, test Dataset, progress func(iteration int)) (*EvaluationResult, error) {
	d.mu.RLock()
	state := d.state.clone()
	d.mu.RUnlock()

	iterations := 0
	if len(train) > 0 {
		if err := state.fit(train, progress); err != nil {
			return nil, err
		}
		iterations = state.Iterations
	} else if !state.Trained {
		return nil, errors.New("detector not trained and no training data supplied")
	}

	eval := test
	if len(eval) == 0 {
		eval = train
	}
	labels, scores, err := state.predictWithScores(eval)
	if err != nil {
		return nil, err
	}

	result := &EvaluationResult{
		Iterations:   iterations,
		TrainSamples: len(train),
		TestSamples:  len(eval),
		Threshold:    state.Threshold,
	}
	anomalous := 0
	for i, score := range scores {
		result.MeanScore += score
		if score > result.MaxScore {
			result.MaxScore = score
		}
		if labels[i] == LabelAnomalous {
			anomalous++
		}
	}
	if len(scores) > 0 {
		result.MeanScore /= float64(len(scores))
		result.AnomalyRate = float64(anomalous) / float64(len(scores))
	}

	d.mu.Lock()
	d.state = state
	d.mu.Unlock()

	return result, nil
}

// fit refines the per-feature mean and deviation scale over a fixed number
// of damped passes, then derives the anomaly threshold from the score
// distribution of the training data.
func (s *learningDetectorState) fit(train Dataset, progress func(iteration int)) error {
	for i, row := range train {
		if len(row) != s.FeatureCount {
			return fmt.Errorf("training row %d has %d features, expected %d", i, len(row), s.FeatureCount)
		}
	}

	if !s.Trained {
		s.Mean = make([]float64, s.FeatureCount)
		s.Scale = make([]float64, s.FeatureCount)
		for j := range s.Scale {
			s.Scale[j] = 1
		}
	}

	batchMean := make([]float64, s.FeatureCount)
	for _, row := range train {
		for j, v := range row {
			batchMean[j] += v
		}
	}
	for j := range batchMean {
		batchMean[j] /= float64(len(train))
	}

	for iter := 1; iter <= s.Iterations; iter++ {
		alpha := 1 / float64(iter)

		for j := range s.Mean {
			s.Mean[j] = (1-alpha)*s.Mean[j] + alpha*batchMean[j]
		}

		batchScale := make([]float64, s.FeatureCount)
		for _, row := range train {
			for j, v := range row {
				batchScale[j] += math.Abs(v - s.Mean[j])
			}
		}
		for j := range batchScale {
			batchScale[j] /= float64(len(train))
			if batchScale[j] < 1e-9 {
				batchScale[j] = 1e-9
			}
			s.Scale[j] = (1-alpha)*s.Scale[j] + alpha*batchScale[j]
		}

		if progress != nil {
			progress(iter)
		}
	}

	s.Trained = true

	if s.Contamination > 0 {
		scores := make([]float64, len(train))
		for i, row := range train {
			scores[i] = s.score(row)
		}
		s.Threshold = percentile(scores, 100*(1-s.Contamination))
	}

	return nil
}

func (s *learningDetectorState) clone() learningDetectorState {
	out := *s
	out.Mean = append([]float64(nil), s.Mean...)
	out.Scale = append([]float64(nil), s.Scale...)
	return out
}

// Marshal serializes the detector state.
func (d *LearningDetector) Marshal() ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(d.state); err != nil {
		return nil, fmt.Errorf("failed to encode detector state: %w", err)
	}
	return buf.Bytes(), nil
}

// Info returns a summary of the detector's current state.
func (d *LearningDetector) Info() DetectorInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return DetectorInfo{
		Kind:         detectorKind,
		FeatureCount: d.state.FeatureCount,
		Iterations:   d.state.Iterations,
		Threshold:    d.state.Threshold,
		Trained:      d.state.Trained,
	}
}

// Threshold returns the current anomaly threshold.
func (d *LearningDetector) Threshold() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state.Threshold
}

// SetThreshold overrides the anomaly threshold.
func (d *LearningDetector) SetThreshold(t float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.Threshold = t
}

// percentile calculates the p-th percentile of the data.
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	idx := int(float64(len(sorted)-1) * p / 100)
	return sorted[idx]
}
