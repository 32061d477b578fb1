package reports

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrReportNotFound   = errors.New("report not found")
	ErrCategoryNotFound = errors.New("category not found")
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&CategoryModel{}, &ReportModel{})
}

type CreateCategoryInput struct {
	Name     string
	Order    int
	Metadata map[string]interface{}
}

func (r *Repository) CreateCategory(ctx context.Context, input CreateCategoryInput) (*CategoryModel, error) {
	category := CategoryModel{
		ID:        uuid.New(),
		Name:      input.Name,
		Order:     input.Order,
		Metadata:  datatypes.JSONMap(input.Metadata),
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&category).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

type CreateReportInput struct {
	ContactKey  string
	ToAddr      string
	ProjectID   uuid.UUID
	Description string
	IncidentAt  *time.Time
	Latitude    float64
	Longitude   float64
	Metadata    map[string]interface{}
}

func (r *Repository) Create(ctx context.Context, input CreateReportInput) (*ReportModel, error) {
	report := ReportModel{
		ID:          uuid.New(),
		ContactKey:  input.ContactKey,
		ToAddr:      input.ToAddr,
		ProjectID:   input.ProjectID,
		Description: input.Description,
		IncidentAt:  input.IncidentAt,
		Latitude:    input.Latitude,
		Longitude:   input.Longitude,
		Metadata:    datatypes.JSONMap(input.Metadata),
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&report).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

// Get loads a report with its category association.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*ReportModel, error) {
	var report ReportModel
	result := r.db.WithContext(ctx).
		Preload("Categories", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order asc")
		}).
		First(&report, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrReportNotFound
	}
	return &report, result.Error
}

// AssignCategories replaces the report's category association. This is the
// second step of the two-step creation flow.
func (r *Repository) AssignCategories(ctx context.Context, reportID uuid.UUID, categoryIDs []uuid.UUID) error {
	report, err := r.Get(ctx, reportID)
	if err != nil {
		return err
	}

	var categories []CategoryModel
	if len(categoryIDs) > 0 {
		if err := r.db.WithContext(ctx).Find(&categories, "id IN ?", categoryIDs).Error; err != nil {
			return err
		}
		if len(categories) != len(categoryIDs) {
			return ErrCategoryNotFound
		}
	}

	return r.db.WithContext(ctx).Model(report).Association("Categories").Replace(categories)
}

// AssignCorrelationToken sets the ticket token only when none is stored yet.
// It reports whether this caller won the assignment, so concurrent dispatch
// attempts can branch on the outcome instead of a racy prior read.
func (r *Repository) AssignCorrelationToken(ctx context.Context, reportID uuid.UUID, token string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&ReportModel{}).
		Where("id = ? AND correlation_token IS NULL", reportID).
		Updates(map[string]interface{}{
			"correlation_token": token,
			"updated_at":        time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// IncrementReplyCount adds one to the report's reply counter.
func (r *Repository) IncrementReplyCount(ctx context.Context, reportID uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&ReportModel{}).
		Where("id = ?", reportID).
		Updates(map[string]interface{}{
			"reply_count": gorm.Expr("reply_count + 1"),
			"updated_at":  time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrReportNotFound
	}
	return nil
}

// RecordUpstreamResponse stores the forms service's response body on the
// report. Presence of the value gates further forms deliveries.
func (r *Repository) RecordUpstreamResponse(ctx context.Context, reportID uuid.UUID, body string) error {
	result := r.db.WithContext(ctx).Model(&ReportModel{}).
		Where("id = ?", reportID).
		Updates(map[string]interface{}{
			"last_upstream_response": body,
			"updated_at":             time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrReportNotFound
	}
	return nil
}

// FindByCorrelationToken returns reports carrying the given ticket token,
// oldest first. Duplicates are possible when the token race was lost; callers
// take the first row.
func (r *Repository) FindByCorrelationToken(ctx context.Context, token string) ([]ReportModel, error) {
	var matches []ReportModel
	result := r.db.WithContext(ctx).
		Where("correlation_token = ?", token).
		Order("created_at asc").
		Find(&matches)
	return matches, result.Error
}
