package models

import "time"

// Toolset is a stored pairing of a serialized anomaly detector and an
// optional serialized classifier, identified by a unique name.
type Toolset struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`

	// Serialized model state. Never exposed over the API.
	Detector   []byte `db:"detector" json:"-"`
	Classifier []byte `db:"classifier" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AnomalyClass is a label taxonomy entry.
type AnomalyClass struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// AnomalyClassMapping maps a classifier output index to an anomaly class
// for one toolset. (toolset, index) and (toolset, class) are unique.
type AnomalyClassMapping struct {
	ID             int64  `db:"id" json:"id"`
	ToolsetID      int64  `db:"toolset_id" json:"toolset_id"`
	Index          int    `db:"index" json:"index"`
	AnomalyClassID *int64 `db:"anomaly_class_id" json:"anomaly_class_id,omitempty"`
}
