package reports

import (
	"context"

	"github.com/fieldsignal/relay/pkg/common/events"
	"github.com/fieldsignal/relay/pkg/common/logger"
	"github.com/google/uuid"
)

// Publisher is satisfied by events.Producer.
type Publisher interface {
	Publish(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

// Service wraps the report store and emits a domain event after every write
// so the trigger engine can react off the request path. Publish failures are
// logged and swallowed: the write has already committed and the event stream
// is advisory, not transactional.
type Service struct {
	repo      *Repository
	publisher Publisher
}

func NewService(repo *Repository, publisher Publisher) *Service {
	return &Service{repo: repo, publisher: publisher}
}

func (s *Service) Create(ctx context.Context, input CreateReportInput) (*ReportModel, error) {
	report, err := s.repo.Create(ctx, input)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.ReportCreated, report.ID)
	return report, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*ReportModel, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) AssignCategories(ctx context.Context, reportID uuid.UUID, categoryIDs []uuid.UUID) (*ReportModel, error) {
	if err := s.repo.AssignCategories(ctx, reportID, categoryIDs); err != nil {
		return nil, err
	}
	s.publish(ctx, events.ReportUpdated, reportID)
	return s.repo.Get(ctx, reportID)
}

func (s *Service) CreateCategory(ctx context.Context, input CreateCategoryInput) (*CategoryModel, error) {
	return s.repo.CreateCategory(ctx, input)
}

func (s *Service) publish(ctx context.Context, eventType string, reportID uuid.UUID) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, eventType, "reports", map[string]interface{}{
		"report_id": reportID.String(),
	})
	if err != nil {
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"report_id":  reportID,
			"event_type": eventType,
		}).Error("failed to publish report event")
	}
}
