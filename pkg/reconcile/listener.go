package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fieldsignal/relay/pkg/common/logger"
	"github.com/fieldsignal/relay/pkg/delivery"
	"github.com/fieldsignal/relay/pkg/queue"
	"github.com/fieldsignal/relay/pkg/registry"
	"github.com/fieldsignal/relay/pkg/reports"
	"github.com/google/uuid"
)

// EventOutgoingMessage is the only webhook event the listener acts on: an
// agent posted an outgoing reply on a ticket.
const EventOutgoingMessage = "message.outgoing"

// ErrUnsupportedEvent rejects every other webhook event kind.
var ErrUnsupportedEvent = errors.New("Webhook event not in allowed_events")

type ReportStore interface {
	FindByCorrelationToken(ctx context.Context, token string) ([]reports.ReportModel, error)
	IncrementReplyCount(ctx context.Context, reportID uuid.UUID) error
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

// Note is the webhook payload fragment the listener cares about.
type Note struct {
	Content     string
	TicketToken string
}

// Ack is the webhook response body.
type Ack struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// Listener translates ticketing webhook callbacks into inbound delivery
// records and report updates. Inbound records are persisted undelivered and
// handed to the dispatcher, which forwards them to the originating channel.
type Listener struct {
	reports      ReportStore
	integrations IntegrationStore
	deliveries   DeliveryStore
	queue        Enqueuer
}

func NewListener(reportStore ReportStore, integrations IntegrationStore, deliveries DeliveryStore, q Enqueuer) *Listener {
	return &Listener{
		reports:      reportStore,
		integrations: integrations,
		deliveries:   deliveries,
		queue:        q,
	}
}

// HandleWebhook processes one callback. Only the unsupported-event branch
// returns an error; every other outcome, including a token that matches
// nothing, is acknowledged so the upstream stops retrying.
func (l *Listener) HandleWebhook(ctx context.Context, event string, note Note) (Ack, error) {
	if event != EventOutgoingMessage {
		return Ack{Accepted: false, Reason: ErrUnsupportedEvent.Error()}, ErrUnsupportedEvent
	}

	log := logger.Log.WithFields(map[string]interface{}{
		"event":        event,
		"ticket_token": note.TicketToken,
	})

	matches, err := l.reports.FindByCorrelationToken(ctx, note.TicketToken)
	if err != nil {
		return Ack{}, fmt.Errorf("failed to look up report by token: %w", err)
	}
	if len(matches) == 0 {
		// Nothing to reconcile; accept anyway so the upstream does
		// not keep retrying a callback we will never match.
		log.Warn("no report matches ticket token, dropping callback")
		return Ack{Accepted: true}, nil
	}
	report := matches[0]
	log = log.WithField("report_id", report.ID)

	integration, err := l.integrations.ActiveIntegration(ctx, report.ProjectID, registry.KindMessaging)
	if errors.Is(err, registry.ErrIntegrationNotFound) {
		log.Error("no active messaging integration for reply, dropping callback")
		return Ack{Accepted: true}, nil
	}
	if err != nil {
		return Ack{}, fmt.Errorf("failed to resolve messaging integration: %w", err)
	}

	record, err := l.deliveries.Create(ctx, delivery.CreateInput{
		IntegrationID: integration.ID,
		ReportID:      &report.ID,
		Kind:          registry.KindMessaging,
		Message:       note.Content,
		ContactKey:    report.ContactKey,
		ToAddr:        report.ToAddr,
	})
	if err != nil {
		return Ack{}, fmt.Errorf("failed to create inbound delivery: %w", err)
	}

	if err := l.reports.IncrementReplyCount(ctx, report.ID); err != nil {
		return Ack{}, fmt.Errorf("failed to increment reply count: %w", err)
	}

	if err := l.queue.Enqueue(ctx, queue.JobDispatchDelivery, map[string]interface{}{
		"delivery_id": record.ID.String(),
	}, 0); err != nil {
		// The record is durable; a stuck forward can be re-triggered.
		log.WithError(err).Error("failed to enqueue reply forward")
	}

	log.WithField("delivery_id", record.ID).Info("reconciled ticket reply")
	return Ack{Accepted: true}, nil
}
