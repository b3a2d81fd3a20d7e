package model

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"sync"
)

// centroidClassifierState is the serialized form of a CentroidClassifier.
type centroidClassifierState struct {
	FeatureCount int
	Classes      int
	Centroids    [][]float64
	Trained      bool
}

// CentroidClassifier assigns anomalies to classes by nearest centroid.
// Class indices are positional; the anomaly class mappings stored with the
// toolset translate them into named classes.
type CentroidClassifier struct {
	mu    sync.RWMutex
	state centroidClassifierState
}

// NewCentroidClassifier creates an untrained classifier for the given
// input dimensionality and number of output classes.
func NewCentroidClassifier(featureCount, classes int) *CentroidClassifier {
	return &CentroidClassifier{
		state: centroidClassifierState{
			FeatureCount: featureCount,
			Classes:      classes,
		},
	}
}

// UnmarshalClassifier deserializes a classifier from its stored blob.
func UnmarshalClassifier(data []byte) (*CentroidClassifier, error) {
	var state centroidClassifierState
	dec := gob.NewDecoder(bytes.NewBuffer(data))
	if err := dec.Decode(&state); err != nil {
		return nil, fmt.Errorf("failed to decode classifier state: %w", err)
	}
	if state.FeatureCount <= 0 || state.Classes <= 0 {
		return nil, errors.New("decoded classifier state has no shape")
	}
	return &CentroidClassifier{state: state}, nil
}

// Fit computes one centroid per class from the labeled samples.
func (c *CentroidClassifier) Fit(samples [][]float64, labels []int) error {
	if len(samples) == 0 {
		return errors.New("empty training data")
	}
	if len(samples) != len(labels) {
		return fmt.Errorf("got %d samples but %d labels", len(samples), len(labels))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	centroids := make([][]float64, c.state.Classes)
	counts := make([]int, c.state.Classes)
	for i := range centroids {
		centroids[i] = make([]float64, c.state.FeatureCount)
	}

	for i, row := range samples {
		if len(row) != c.state.FeatureCount {
			return fmt.Errorf("sample %d has %d features, expected %d", i, len(row), c.state.FeatureCount)
		}
		label := labels[i]
		if label < 0 || label >= c.state.Classes {
			return fmt.Errorf("label %d out of range for %d classes", label, c.state.Classes)
		}
		for j, v := range row {
			centroids[label][j] += v
		}
		counts[label]++
	}

	for class, count := range counts {
		if count == 0 {
			continue
		}
		for j := range centroids[class] {
			centroids[class][j] /= float64(count)
		}
	}

	c.state.Centroids = centroids
	c.state.Trained = true
	return nil
}

// PredictWithScores returns the predicted class index per row and the
// per-class score vector per row. Scores are inverse-distance weights
// normalized to sum to one.
func (c *CentroidClassifier) PredictWithScores(batch [][]float64) ([]int, [][]float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.state.Trained {
		return nil, nil, errors.New("classifier not trained")
	}

	labels := make([]int, len(batch))
	scores := make([][]float64, len(batch))
	for i, row := range batch {
		if len(row) != c.state.FeatureCount {
			return nil, nil, fmt.Errorf("row %d has %d features, expected %d", i, len(row), c.state.FeatureCount)
		}

		rowScores := make([]float64, c.state.Classes)
		var total float64
		best := 0
		for class, centroid := range c.state.Centroids {
			rowScores[class] = 1 / (1 + distance(row, centroid))
			total += rowScores[class]
			if rowScores[class] > rowScores[best] {
				best = class
			}
		}
		for class := range rowScores {
			rowScores[class] /= total
		}

		labels[i] = best
		scores[i] = rowScores
	}
	return labels, scores, nil
}

// Marshal serializes the classifier state.
func (c *CentroidClassifier) Marshal() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(c.state); err != nil {
		return nil, fmt.Errorf("failed to encode classifier state: %w", err)
	}
	return buf.Bytes(), nil
}

func distance(a, b []float64) float64 {
	var sum float64
	for j := range a {
		d := a[j] - b[j]
		sum += d * d
	}
	return math.Sqrt(sum)
}
