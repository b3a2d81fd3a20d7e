// Package model provides the live model capabilities behind a toolset:
// an anomaly detector and an optional anomaly classifier, both serializable
// to opaque blobs for storage.
package model

// Labels produced by a detector for each scored row.
const (
	LabelNormal    = 0
	LabelAnomalous = 1
)

// Dataset is a table of feature vectors, one row per sample.
type Dataset [][]float64

// Detector scores feature vectors for anomalousness.
type Detector interface {
	// FeatureCount returns the expected dimensionality of input rows.
	FeatureCount() int

	// Predict returns a per-row label (LabelNormal or LabelAnomalous).
	Predict(batch [][]float64) ([]int, error)

	// PredictWithScores returns per-row labels together with anomaly
	// scores in [0, 1), higher meaning more anomalous.
	PredictWithScores(batch [][]float64) ([]int, []float64, error)

	// Evaluate fits the detector on train (when non-empty) and evaluates
	// it on test (or on train when test is empty). progress is invoked
	// once per fit iteration.
	Evaluate(train, test Dataset, progress func(iteration int)) (*EvaluationResult, error)

	// Marshal serializes the detector state to bytes.
	Marshal() ([]byte, error)

	// Info returns a summary of the detector's current state.
	Info() DetectorInfo
}

// Classifier predicts which anomaly class a flagged sample belongs to.
// Output indices are mapped to class names via the stored class mappings.
type Classifier interface {
	// Fit trains the classifier on labeled samples.
	Fit(samples [][]float64, labels []int) error

	// PredictWithScores returns the predicted class index per row and the
	// per-class score vector per row.
	PredictWithScores(batch [][]float64) ([]int, [][]float64, error)

	// Marshal serializes the classifier state to bytes.
	Marshal() ([]byte, error)
}

// EvaluationResult summarizes one fit/evaluate run of a detector.
type EvaluationResult struct {
	Iterations   int     `json:"iterations"`
	TrainSamples int     `json:"train_samples"`
	TestSamples  int     `json:"test_samples"`
	MeanScore    float64 `json:"mean_score"`
	MaxScore     float64 `json:"max_score"`
	AnomalyRate  float64 `json:"anomaly_rate"`
	Threshold    float64 `json:"threshold"`
}

// DetectorInfo is the API-facing representation of a detector's state.
type DetectorInfo struct {
	Kind         string  `json:"kind"`
	FeatureCount int     `json:"feature_count"`
	Iterations   int     `json:"iterations"`
	Threshold    float64 `json:"threshold"`
	Trained      bool    `json:"trained"`
}
