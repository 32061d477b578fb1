package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrDeliveryNotFound = errors.New("delivery not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&RecordModel{})
}

type CreateInput struct {
	IntegrationID uuid.UUID
	ReportID      *uuid.UUID
	Kind          string
	Message       string
	ContactKey    string
	FromAddr      string
	ToAddr        string
	Metadata      map[string]interface{}
}

func (r *Repository) Create(ctx context.Context, input CreateInput) (*RecordModel, error) {
	record := RecordModel{
		ID:            uuid.New(),
		IntegrationID: input.IntegrationID,
		ReportID:      input.ReportID,
		Kind:          input.Kind,
		Message:       input.Message,
		ContactKey:    input.ContactKey,
		FromAddr:      input.FromAddr,
		ToAddr:        input.ToAddr,
		Metadata:      datatypes.JSONMap(input.Metadata),
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// Get loads a record with its integration, since dispatch needs the
// credential map.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*RecordModel, error) {
	var record RecordModel
	result := r.db.WithContext(ctx).Preload(clause.Associations).First(&record, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrDeliveryNotFound
	}
	return &record, result.Error
}

// MarkDelivered flips the record to delivered and merges the given keys into
// its metadata map. The delivered flag is what makes redundant job executions
// a no-op, so it is only ever set after a confirmed upstream success.
func (r *Repository) MarkDelivered(ctx context.Context, id uuid.UUID, metadata map[string]interface{}) error {
	record, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	merged := record.Metadata
	if merged == nil {
		merged = datatypes.JSONMap{}
	}
	for k, v := range metadata {
		merged[k] = v
	}

	return r.db.WithContext(ctx).Model(&RecordModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"delivered":  true,
			"metadata":   merged,
			"updated_at": time.Now().UTC(),
		}).Error
}

// List returns recent records, newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]RecordModel, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []RecordModel
	result := r.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&records)
	return records, result.Error
}
