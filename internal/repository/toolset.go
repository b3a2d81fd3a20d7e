package repository

import (
	"mtehis/internal/models"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// ToolsetRepository handles database operations for stored toolsets.
type ToolsetRepository interface {
	Create(toolset *models.Toolset) error
	GetByName(name string) (*models.Toolset, error)
	GetAll() ([]*models.Toolset, error)
	// Save fully replaces the serialized model state of an existing
	// toolset. No partial or merge update.
	Save(toolset *models.Toolset) error
}

type toolsetRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewToolsetRepository(db *sqlx.DB, logger *zap.Logger) ToolsetRepository {
	return &toolsetRepository{db: db, logger: logger}
}

func (r *toolsetRepository) Create(toolset *models.Toolset) error {
	query := `INSERT INTO toolsets (name, detector, classifier) VALUES ($1, $2, $3) RETURNING id, created_at`
	return r.db.QueryRowx(query, toolset.Name, toolset.Detector, toolset.Classifier).StructScan(toolset)
}

func (r *toolsetRepository) GetByName(name string) (*models.Toolset, error) {
	var toolset models.Toolset
	query := `SELECT id, name, detector, classifier, created_at FROM toolsets WHERE name = $1`
	err := r.db.Get(&toolset, query, name)
	if err != nil {
		return nil, err
	}
	return &toolset, nil
}

func (r *toolsetRepository) GetAll() ([]*models.Toolset, error) {
	var toolsets []*models.Toolset
	query := `SELECT id, name, detector, classifier, created_at FROM toolsets ORDER BY name, created_at DESC`
	err := r.db.Select(&toolsets, query)
	if err != nil {
		return nil, err
	}
	return toolsets, nil
}

func (r *toolsetRepository) Save(toolset *models.Toolset) error {
	query := `UPDATE toolsets SET detector = $1, classifier = $2 WHERE id = $3`
	_, err := r.db.Exec(query, toolset.Detector, toolset.Classifier, toolset.ID)
	return err
}
