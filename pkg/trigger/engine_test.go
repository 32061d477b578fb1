package trigger

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/fieldsignal/relay/pkg/common/events"
	"github.com/fieldsignal/relay/pkg/common/logger"
	"github.com/fieldsignal/relay/pkg/delivery"
	"github.com/fieldsignal/relay/pkg/queue"
	"github.com/fieldsignal/relay/pkg/registry"
	"github.com/fieldsignal/relay/pkg/reports"
	"github.com/google/uuid"
)

func TestMain(m *testing.M) {
	logger.Init("test")
	m.Run()
}

type fakeReportStore struct {
	reports map[uuid.UUID]*reports.ReportModel
}

func (f *fakeReportStore) Get(ctx context.Context, id uuid.UUID) (*reports.ReportModel, error) {
	report, ok := f.reports[id]
	if !ok {
		return nil, reports.ErrReportNotFound
	}
	return report, nil
}

type fakeIntegrationStore struct {
	byKind map[string]*registry.IntegrationModel
}

func (f *fakeIntegrationStore) ActiveIntegration(ctx context.Context, projectID uuid.UUID, kind string) (*registry.IntegrationModel, error) {
	integration, ok := f.byKind[kind]
	if !ok {
		return nil, registry.ErrIntegrationNotFound
	}
	return integration, nil
}

type fakeDeliveryStore struct {
	created []delivery.CreateInput
}

func (f *fakeDeliveryStore) Create(ctx context.Context, input delivery.CreateInput) (*delivery.RecordModel, error) {
	f.created = append(f.created, input)
	return &delivery.RecordModel{
		ID:            uuid.New(),
		IntegrationID: input.IntegrationID,
		ReportID:      input.ReportID,
		Kind:          input.Kind,
		Message:       input.Message,
	}, nil
}

type enqueued struct {
	name    string
	payload map[string]interface{}
	delay   time.Duration
}

type fakeQueue struct {
	jobs []enqueued
}

func (f *fakeQueue) Enqueue(ctx context.Context, name string, payload map[string]interface{}, delay time.Duration) error {
	f.jobs = append(f.jobs, enqueued{name: name, payload: payload, delay: delay})
	return nil
}

const formsDelay = 10 * time.Minute

type fixture struct {
	engine       *Engine
	reports      *fakeReportStore
	integrations *fakeIntegrationStore
	deliveries   *fakeDeliveryStore
	queue        *fakeQueue
}

func newFixture(report *reports.ReportModel, kinds ...string) *fixture {
	byKind := make(map[string]*registry.IntegrationModel)
	for _, kind := range kinds {
		byKind[kind] = &registry.IntegrationModel{ID: uuid.New(), Kind: kind, Active: true}
	}
	f := &fixture{
		reports:      &fakeReportStore{reports: map[uuid.UUID]*reports.ReportModel{report.ID: report}},
		integrations: &fakeIntegrationStore{byKind: byKind},
		deliveries:   &fakeDeliveryStore{},
		queue:        &fakeQueue{},
	}
	f.engine = NewEngine(f.reports, f.integrations, f.deliveries, f.queue, formsDelay)
	return f
}

func categorizedReport() *reports.ReportModel {
	return &reports.ReportModel{
		ID:          uuid.New(),
		ContactKey:  "579ed9e9c0554eeca149d7fccd9b54e5",
		ToAddr:      "+27845001001",
		ProjectID:   uuid.New(),
		Description: "burst pipe on main road",
		Latitude:    -33.0,
		Longitude:   18.0,
		Categories: []reports.CategoryModel{
			{ID: uuid.New(), Name: "Water"},
			{ID: uuid.New(), Name: "Infrastructure"},
		},
	}
}

func TestEvaluateSkipsUncategorizedReport(t *testing.T) {
	report := categorizedReport()
	report.Categories = nil
	f := newFixture(report, registry.KindTicketing, registry.KindForms)

	if err := f.engine.Evaluate(context.Background(), report.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.deliveries.created) != 0 || len(f.queue.jobs) != 0 {
		t.Fatalf("uncategorized report must not trigger, got %d deliveries %d jobs",
			len(f.deliveries.created), len(f.queue.jobs))
	}
}

func TestEvaluateEnqueuesTicketingOnceCategorized(t *testing.T) {
	report := categorizedReport()
	f := newFixture(report, registry.KindTicketing)

	if err := f.engine.Evaluate(context.Background(), report.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.deliveries.created) != 1 {
		t.Fatalf("expected one delivery, got %d", len(f.deliveries.created))
	}
	created := f.deliveries.created[0]
	if created.Kind != registry.KindTicketing {
		t.Fatalf("expected ticketing delivery, got %q", created.Kind)
	}
	if created.FromAddr != report.ToAddr || created.ContactKey != report.ContactKey {
		t.Fatal("correlation fields not copied from report")
	}
	if !strings.Contains(created.Message, "burst pipe on main road") {
		t.Fatalf("ticket body missing description: %q", created.Message)
	}
	if !strings.Contains(created.Message, "Water <br>") || !strings.Contains(created.Message, "Infrastructure <br>") {
		t.Fatalf("ticket body missing categories: %q", created.Message)
	}
	if !strings.Contains(created.Message, "maps/@-33,18") {
		t.Fatalf("ticket body missing map link: %q", created.Message)
	}

	if len(f.queue.jobs) != 1 || f.queue.jobs[0].name != queue.JobDispatchDelivery {
		t.Fatalf("expected one dispatch job, got %+v", f.queue.jobs)
	}
	if f.queue.jobs[0].delay != 0 {
		t.Fatalf("ticketing dispatch must be immediate, got delay %v", f.queue.jobs[0].delay)
	}
}

func TestEvaluateSkipsTicketingWhenTokenPresent(t *testing.T) {
	report := categorizedReport()
	token := "nonce"
	report.CorrelationToken = &token
	f := newFixture(report, registry.KindTicketing)

	if err := f.engine.Evaluate(context.Background(), report.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.deliveries.created) != 0 {
		t.Fatalf("existing token must suppress ticketing delivery, got %d", len(f.deliveries.created))
	}
}

func TestEvaluateSkipsWithoutActiveIntegration(t *testing.T) {
	report := categorizedReport()
	f := newFixture(report) // no integrations at all

	if err := f.engine.Evaluate(context.Background(), report.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.deliveries.created) != 0 || len(f.queue.jobs) != 0 {
		t.Fatal("no active integration must mean no deliveries")
	}
}

func TestEvaluateDelaysFormsForEmptyDescription(t *testing.T) {
	report := categorizedReport()
	report.Description = ""
	f := newFixture(report, registry.KindForms)

	if err := f.engine.Evaluate(context.Background(), report.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.deliveries.created) != 1 || f.deliveries.created[0].Kind != registry.KindForms {
		t.Fatalf("expected one forms delivery, got %+v", f.deliveries.created)
	}
	if len(f.queue.jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(f.queue.jobs))
	}
	if f.queue.jobs[0].delay != formsDelay {
		t.Fatalf("empty description must delay the submission, got %v", f.queue.jobs[0].delay)
	}
}

func TestEvaluateSubmitsFormsImmediatelyWithDescription(t *testing.T) {
	report := categorizedReport()
	f := newFixture(report, registry.KindForms)

	if err := f.engine.Evaluate(context.Background(), report.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.queue.jobs) != 1 || f.queue.jobs[0].delay != 0 {
		t.Fatalf("expected immediate forms dispatch, got %+v", f.queue.jobs)
	}
	if !strings.Contains(f.deliveries.created[0].Message, `"description":"burst pipe on main road"`) {
		t.Fatalf("submission body missing description: %q", f.deliveries.created[0].Message)
	}
}

func TestEvaluateSkipsFormsWhenResponseRecorded(t *testing.T) {
	report := categorizedReport()
	resp := `{"status":"ok"}`
	report.LastUpstreamResponse = &resp
	f := newFixture(report, registry.KindForms)

	if err := f.engine.Evaluate(context.Background(), report.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.deliveries.created) != 0 {
		t.Fatal("recorded forms response must suppress further submissions")
	}
}

func eventFor(eventType, reportID string) events.Event {
	return events.Event{
		ID:   uuid.New().String(),
		Type: eventType,
		Data: map[string]interface{}{"report_id": reportID},
	}
}

func TestHandleEventIgnoresUnknownTypes(t *testing.T) {
	report := categorizedReport()
	f := newFixture(report, registry.KindTicketing)

	err := f.engine.HandleEvent(context.Background(), eventFor("delivery.updated", report.ID.String()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.deliveries.created) != 0 {
		t.Fatal("unrelated event types must be ignored")
	}
}

func TestHandleEventEvaluatesReport(t *testing.T) {
	report := categorizedReport()
	f := newFixture(report, registry.KindTicketing)

	err := f.engine.HandleEvent(context.Background(), eventFor("report.updated", report.ID.String()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.deliveries.created) != 1 {
		t.Fatalf("expected evaluation to run, got %d deliveries", len(f.deliveries.created))
	}
}
