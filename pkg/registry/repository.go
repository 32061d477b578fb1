package registry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrProjectNotFound     = errors.New("project not found")
	ErrIntegrationNotFound = errors.New("integration not found")
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&ProjectModel{}, &IntegrationModel{})
}

type CreateProjectInput struct {
	Code     string
	Name     string
	Metadata map[string]interface{}
}

func (r *Repository) CreateProject(ctx context.Context, input CreateProjectInput) (*ProjectModel, error) {
	project := ProjectModel{
		ID:        uuid.New(),
		Code:      input.Code,
		Name:      input.Name,
		Metadata:  datatypes.JSONMap(input.Metadata),
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&project).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *Repository) GetProject(ctx context.Context, id uuid.UUID) (*ProjectModel, error) {
	var project ProjectModel
	result := r.db.WithContext(ctx).First(&project, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrProjectNotFound
	}
	return &project, result.Error
}

type CreateIntegrationInput struct {
	ProjectID uuid.UUID
	Kind      string
	Details   map[string]interface{}
	Active    bool
}

func (r *Repository) CreateIntegration(ctx context.Context, input CreateIntegrationInput) (*IntegrationModel, error) {
	integration := IntegrationModel{
		ID:        uuid.New(),
		ProjectID: input.ProjectID,
		Kind:      input.Kind,
		Details:   datatypes.JSONMap(input.Details),
		Active:    input.Active,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&integration).Error; err != nil {
		return nil, err
	}
	return &integration, nil
}

func (r *Repository) GetIntegration(ctx context.Context, id uuid.UUID) (*IntegrationModel, error) {
	var integration IntegrationModel
	result := r.db.WithContext(ctx).First(&integration, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrIntegrationNotFound
	}
	return &integration, result.Error
}

// ActiveIntegration returns the active integration of the given kind for a
// project. When several are active it returns the oldest, matching the
// at-most-one expectation of the dispatch logic.
func (r *Repository) ActiveIntegration(ctx context.Context, projectID uuid.UUID, kind string) (*IntegrationModel, error) {
	var integration IntegrationModel
	result := r.db.WithContext(ctx).
		Where("project_id = ? AND kind = ? AND active = ?", projectID, kind, true).
		Order("created_at asc").
		First(&integration)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrIntegrationNotFound
	}
	return &integration, result.Error
}
