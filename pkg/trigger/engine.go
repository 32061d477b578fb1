package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fieldsignal/relay/pkg/common/events"
	"github.com/fieldsignal/relay/pkg/common/logger"
	"github.com/fieldsignal/relay/pkg/delivery"
	"github.com/fieldsignal/relay/pkg/queue"
	"github.com/fieldsignal/relay/pkg/registry"
	"github.com/fieldsignal/relay/pkg/reports"
	"github.com/google/uuid"
)

type ReportStore interface {
	Get(ctx context.Context, id uuid.UUID) (*reports.ReportModel, error)
}

type IntegrationStore interface {
	ActiveIntegration(ctx context.Context, projectID uuid.UUID, kind string) (*registry.IntegrationModel, error)
}

type DeliveryStore interface {
	Create(ctx context.Context, input delivery.CreateInput) (*delivery.RecordModel, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload map[string]interface{}, delay time.Duration) error
}

// Engine reacts to report write events and decides which deliveries to
// enqueue. It performs no network I/O itself; the dispatcher owns all
// upstream calls and all mutation of the records it creates.
//
// Report creation is a two-step write (the category association lands in a
// follow-up request), so the engine debounces by skipping any report that
// has no categories yet. The category-assignment event re-runs it.
type Engine struct {
	reports      ReportStore
	integrations IntegrationStore
	deliveries   DeliveryStore
	queue        Enqueuer
	formsDelay   time.Duration
}

func NewEngine(reportStore ReportStore, integrations IntegrationStore, deliveries DeliveryStore, q Enqueuer, formsDelay time.Duration) *Engine {
	return &Engine{
		reports:      reportStore,
		integrations: integrations,
		deliveries:   deliveries,
		queue:        q,
		formsDelay:   formsDelay,
	}
}

// HandleEvent adapts the engine to the report event stream.
func (e *Engine) HandleEvent(ctx context.Context, event events.Event) error {
	if event.Type != events.ReportCreated && event.Type != events.ReportUpdated {
		return nil
	}
	raw, _ := event.Data["report_id"].(string)
	reportID, err := uuid.Parse(raw)
	if err != nil {
		logger.Log.WithField("event_id", event.ID).Error("report event without usable report_id")
		return nil
	}
	return e.Evaluate(ctx, reportID)
}

// Evaluate applies the trigger rules to one report.
func (e *Engine) Evaluate(ctx context.Context, reportID uuid.UUID) error {
	log := logger.Log.WithField("report_id", reportID)

	report, err := e.reports.Get(ctx, reportID)
	if errors.Is(err, reports.ErrReportNotFound) {
		log.Error("report missing at trigger time")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load report: %w", err)
	}

	// Categories arrive in a second write; an uncategorized report is
	// still mid-creation.
	if len(report.Categories) == 0 {
		log.Debug("report has no categories yet, skipping")
		return nil
	}

	if err := e.evaluateTicketing(ctx, report); err != nil {
		return err
	}
	return e.evaluateForms(ctx, report)
}

func (e *Engine) evaluateTicketing(ctx context.Context, report *reports.ReportModel) error {
	if report.CorrelationToken != nil {
		return nil
	}

	integration, err := e.integrations.ActiveIntegration(ctx, report.ProjectID, registry.KindTicketing)
	if errors.Is(err, registry.ErrIntegrationNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to resolve ticketing integration: %w", err)
	}

	record, err := e.deliveries.Create(ctx, delivery.CreateInput{
		IntegrationID: integration.ID,
		ReportID:      &report.ID,
		Kind:          registry.KindTicketing,
		Message:       renderTicketBody(report),
		ContactKey:    report.ContactKey,
		FromAddr:      report.ToAddr,
	})
	if err != nil {
		return fmt.Errorf("failed to create ticketing delivery: %w", err)
	}

	logger.Log.WithFields(map[string]interface{}{
		"report_id":   report.ID,
		"delivery_id": record.ID,
	}).Info("enqueued ticketing delivery")

	return e.queue.Enqueue(ctx, queue.JobDispatchDelivery, map[string]interface{}{
		"delivery_id": record.ID.String(),
	}, 0)
}

func (e *Engine) evaluateForms(ctx context.Context, report *reports.ReportModel) error {
	if report.LastUpstreamResponse != nil {
		return nil
	}

	integration, err := e.integrations.ActiveIntegration(ctx, report.ProjectID, registry.KindForms)
	if errors.Is(err, registry.ErrIntegrationNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to resolve forms integration: %w", err)
	}

	content, err := renderSubmission(report)
	if err != nil {
		return fmt.Errorf("failed to render submission: %w", err)
	}

	record, err := e.deliveries.Create(ctx, delivery.CreateInput{
		IntegrationID: integration.ID,
		ReportID:      &report.ID,
		Kind:          registry.KindForms,
		Message:       content,
		ContactKey:    report.ContactKey,
		FromAddr:      report.ToAddr,
	})
	if err != nil {
		return fmt.Errorf("failed to create forms delivery: %w", err)
	}

	// An empty description usually means the field worker is still
	// typing; hold the submission back to give them the window.
	var delay time.Duration
	if strings.TrimSpace(report.Description) == "" {
		delay = e.formsDelay
	}

	logger.Log.WithFields(map[string]interface{}{
		"report_id":   report.ID,
		"delivery_id": record.ID,
		"delay":       delay.String(),
	}).Info("enqueued forms delivery")

	return e.queue.Enqueue(ctx, queue.JobDispatchDelivery, map[string]interface{}{
		"delivery_id": record.ID.String(),
	}, delay)
}

// renderTicketBody builds the HTML note body for a new ticket: description,
// category list and a map link.
func renderTicketBody(report *reports.ReportModel) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Description:</b> %s <br>", report.Description)
	b.WriteString("<b>Categories:</b> <br>")
	for _, name := range report.CategoryNames() {
		fmt.Fprintf(&b, "%s <br>", name)
	}
	fmt.Fprintf(&b, `<b>Location:</b> <a href="https://www.google.com/maps/@%v,%v,13z">Map</a>`,
		report.Latitude, report.Longitude)
	return b.String()
}

// renderSubmission builds the JSON document sent to the forms service.
func renderSubmission(report *reports.ReportModel) (string, error) {
	doc := map[string]interface{}{
		"report_id":   report.ID.String(),
		"contact_key": report.ContactKey,
		"description": report.Description,
		"categories":  report.CategoryNames(),
		"location": map[string]float64{
			"latitude":  report.Latitude,
			"longitude": report.Longitude,
		},
	}
	if report.IncidentAt != nil {
		doc["incident_at"] = report.IncidentAt.UTC().Format(time.RFC3339)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
