package repository

import (
	"fmt"
	"time"

	"mtehis/internal/models"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// AnomalyRepository handles database operations for anomaly records and
// the anomaly class taxonomy.
type AnomalyRepository interface {
	SaveAnomaly(anomaly *models.Anomaly) error
	// GetByToolset returns anomaly records for a toolset, optionally
	// restricted to a creation-time range. Both bounds are inclusive.
	GetByToolset(toolsetID int64, from, to *time.Time) ([]*models.Anomaly, error)
	LabelAnomaly(anomalyID, classID int64) error

	CreateClass(class *models.AnomalyClass) error
	GetClasses() ([]*models.AnomalyClass, error)

	SetClassMapping(mapping *models.AnomalyClassMapping) error
	GetClassMappings(toolsetID int64) ([]*models.AnomalyClassMapping, error)
}

type anomalyRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewAnomalyRepository(db *sqlx.DB, logger *zap.Logger) AnomalyRepository {
	return &anomalyRepository{db: db, logger: logger}
}

func (r *anomalyRepository) SaveAnomaly(anomaly *models.Anomaly) error {
	query := `INSERT INTO anomalies (toolset_id, inputs, detector_scores, classifier_scores, label_id)
	          VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`
	return r.db.QueryRowx(query, anomaly.ToolsetID, anomaly.Inputs, anomaly.DetectorScores,
		anomaly.ClassifierScores, anomaly.LabelID).StructScan(anomaly)
}

func (r *anomalyRepository) GetByToolset(toolsetID int64, from, to *time.Time) ([]*models.Anomaly, error) {
	query := `SELECT id, toolset_id, inputs, detector_scores, classifier_scores, label_id, created_at
	          FROM anomalies WHERE toolset_id = $1`
	args := []interface{}{toolsetID}

	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	var anomalies []*models.Anomaly
	if err := r.db.Select(&anomalies, query, args...); err != nil {
		return nil, err
	}
	return anomalies, nil
}

func (r *anomalyRepository) LabelAnomaly(anomalyID, classID int64) error {
	query := `UPDATE anomalies SET label_id = $1 WHERE id = $2`
	_, err := r.db.Exec(query, classID, anomalyID)
	return err
}

func (r *anomalyRepository) CreateClass(class *models.AnomalyClass) error {
	query := `INSERT INTO anomaly_classes (name) VALUES ($1) RETURNING id`
	return r.db.QueryRowx(query, class.Name).StructScan(class)
}

func (r *anomalyRepository) GetClasses() ([]*models.AnomalyClass, error) {
	var classes []*models.AnomalyClass
	query := `SELECT id, name FROM anomaly_classes ORDER BY name`
	if err := r.db.Select(&classes, query); err != nil {
		return nil, err
	}
	return classes, nil
}

func (r *anomalyRepository) SetClassMapping(mapping *models.AnomalyClassMapping) error {
	// (toolset, index) upserts; the (toolset, class) unique constraint
	// still rejects a class bound to two indices of the same toolset.
	query := `INSERT INTO anomaly_class_mappings (toolset_id, "index", anomaly_class_id)
	          VALUES ($1, $2, $3)
	          ON CONFLICT (toolset_id, "index") DO UPDATE SET anomaly_class_id = EXCLUDED.anomaly_class_id
	          RETURNING id`
	return r.db.QueryRowx(query, mapping.ToolsetID, mapping.Index, mapping.AnomalyClassID).StructScan(mapping)
}

func (r *anomalyRepository) GetClassMappings(toolsetID int64) ([]*models.AnomalyClassMapping, error) {
	var mappings []*models.AnomalyClassMapping
	query := `SELECT id, toolset_id, "index", anomaly_class_id FROM anomaly_class_mappings
	          WHERE toolset_id = $1 ORDER BY "index"`
	if err := r.db.Select(&mappings, query, toolsetID); err != nil {
		return nil, err
	}
	return mappings, nil
}
