package models

import "time"

// Anomaly is a persisted observation flagged as anomalous by a toolset's
// detector. Records are never auto-deleted; the label is assigned later by
// manual review.
type Anomaly struct {
	ID        int64 `db:"id" json:"id"`
	ToolsetID int64 `db:"toolset_id" json:"toolset_id"`

	// JSON-encoded float vectors so the query path can return them decoded.
	Inputs           []byte `db:"inputs" json:"-"`
	DetectorScores   []byte `db:"detector_scores" json:"-"`
	ClassifierScores []byte `db:"classifier_scores" json:"-"`

	LabelID   *int64    `db:"label_id" json:"label_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
