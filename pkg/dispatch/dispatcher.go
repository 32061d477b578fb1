package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fieldsignal/relay/pkg/common/httpclient"
	"github.com/fieldsignal/relay/pkg/common/logger"
	"github.com/fieldsignal/relay/pkg/delivery"
	"github.com/fieldsignal/relay/pkg/queue"
	"github.com/fieldsignal/relay/pkg/registry"
	"github.com/fieldsignal/relay/pkg/reports"
	"github.com/fieldsignal/relay/pkg/upstream"
	"github.com/google/uuid"
)

// DeliveryStore is the slice of the delivery repository the dispatcher needs.
type DeliveryStore interface {
	Get(ctx context.Context, id uuid.UUID) (*delivery.RecordModel, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, metadata map[string]interface{}) error
}

// ReportStore is the slice of the report repository the dispatcher needs.
type ReportStore interface {
	Get(ctx context.Context, id uuid.UUID) (*reports.ReportModel, error)
	AssignCorrelationToken(ctx context.Context, reportID uuid.UUID, token string) (bool, error)
	RecordUpstreamResponse(ctx context.Context, reportID uuid.UUID, body string) error
}

// IntegrationStore resolves integrations for detached jobs like tag
// attachment.
type IntegrationStore interface {
	GetIntegration(ctx context.Context, id uuid.UUID) (*registry.IntegrationModel, error)
}

// Enqueuer is satisfied by queue.Queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload map[string]interface{}, delay time.Duration) error
}

// Dispatcher performs the third-party call for one delivery record. It is
// idempotent over redundant job executions via the record's delivered flag
// and retries transient (5xx) upstream failures within a fixed budget.
type Dispatcher struct {
	deliveries   DeliveryStore
	reports      ReportStore
	integrations IntegrationStore
	clients      ClientFactory
	queue        Enqueuer
	retries      int
	backoff      time.Duration
}

func NewDispatcher(deliveries DeliveryStore, reportStore ReportStore, integrations IntegrationStore, clients ClientFactory, q Enqueuer, retries int, backoff time.Duration) *Dispatcher {
	if retries <= 0 {
		retries = 3
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &Dispatcher{
		deliveries:   deliveries,
		reports:      reportStore,
		integrations: integrations,
		clients:      clients,
		queue:        q,
		retries:      retries,
		backoff:      backoff,
	}
}

// Deliver loads and sends one delivery record. A missing record is logged
// and returned as-is; the caller must not reschedule it. An already
// delivered record is a no-op.
func (d *Dispatcher) Deliver(ctx context.Context, deliveryID uuid.UUID) error {
	log := logger.Log.WithField("delivery_id", deliveryID)

	record, err := d.deliveries.Get(ctx, deliveryID)
	if errors.Is(err, delivery.ErrDeliveryNotFound) {
		log.WithError(err).Error("delivery record missing at dispatch time")
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to load delivery: %w", err)
	}

	if record.Delivered {
		log.Debug("delivery already completed, skipping")
		return nil
	}

	switch record.Kind {
	case registry.KindMessaging:
		err = d.deliverMessaging(ctx, record)
	case registry.KindTicketing:
		err = d.deliverTicketing(ctx, record)
	case registry.KindForms:
		err = d.deliverForms(ctx, record)
	default:
		err = fmt.Errorf("unknown delivery kind %q", record.Kind)
	}

	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			log.WithError(err).Error("dispatch aborted on deadline")
		case upstream.IsTransient(err):
			log.WithError(err).Error("dispatch failed after retry budget exhausted")
		default:
			log.WithError(err).Error("dispatch failed terminally")
		}
		return err
	}
	return nil
}

func (d *Dispatcher) deliverMessaging(ctx context.Context, record *delivery.RecordModel) error {
	client := d.clients.Gateway(&record.Integration)
	body := StripMarkup(record.Message)

	var messageID string
	err := d.withRetry(ctx, func() error {
		var sendErr error
		messageID, sendErr = client.SendText(ctx, record.ToAddr, body)
		return sendErr
	})
	if err != nil {
		return err
	}

	logger.Log.WithFields(map[string]interface{}{
		"delivery_id": record.ID,
		"to_addr":     record.ToAddr,
	}).Info("sent text message")

	return d.deliveries.MarkDelivered(ctx, record.ID, map[string]interface{}{
		delivery.MetaGatewayMessageID: messageID,
	})
}

func (d *Dispatcher) deliverTicketing(ctx context.Context, record *delivery.RecordModel) error {
	var report *reports.ReportModel
	if record.ReportID != nil {
		var err error
		report, err = d.reports.Get(ctx, *record.ReportID)
		if errors.Is(err, reports.ErrReportNotFound) {
			logger.Log.WithError(err).WithField("delivery_id", record.ID).
				Error("report missing at dispatch time")
			return err
		}
		if err != nil {
			return fmt.Errorf("failed to load report: %w", err)
		}
	}

	client := d.clients.Ticketing(&record.Integration)

	// Reply path: a stored correlation token means the ticket already
	// exists. The token is reused and never rewritten here.
	if report != nil && report.CorrelationToken != nil {
		err := d.withRetry(ctx, func() error {
			_, replyErr := client.CreateNote(ctx,
				subjectFor(record), record.Message,
				record.FromAddr, d.senderAddr(record),
				*report.CorrelationToken)
			return replyErr
		})
		if err != nil {
			return err
		}
		return d.deliveries.MarkDelivered(ctx, record.ID, nil)
	}

	// New-ticket path.
	var token string
	err := d.withRetry(ctx, func() error {
		var createErr error
		token, createErr = client.CreateNote(ctx,
			subjectFor(record), record.Message,
			record.FromAddr, d.senderAddr(record), "")
		return createErr
	})
	if err != nil {
		return err
	}

	if report != nil {
		won, casErr := d.reports.AssignCorrelationToken(ctx, report.ID, token)
		if casErr != nil {
			return fmt.Errorf("failed to store correlation token: %w", casErr)
		}
		if won {
			d.enqueueTags(ctx, record.IntegrationID, token, report.CategoryNames())
		} else {
			// A concurrent dispatch created a ticket first. The
			// stored token stands; this ticket is orphaned.
			logger.Log.WithFields(map[string]interface{}{
				"report_id":    report.ID,
				"ticket_token": token,
			}).Warn("lost correlation token race, duplicate ticket created")
		}
	}

	return d.deliveries.MarkDelivered(ctx, record.ID, map[string]interface{}{
		delivery.MetaTicketToken: token,
	})
}

func (d *Dispatcher) deliverForms(ctx context.Context, record *delivery.RecordModel) error {
	client := d.clients.Forms(&record.Integration)

	var response string
	err := d.withRetry(ctx, func() error {
		var submitErr error
		response, submitErr = client.Submit(ctx, record.Message)
		return submitErr
	})
	if err != nil {
		return err
	}

	if record.ReportID != nil {
		if err := d.reports.RecordUpstreamResponse(ctx, *record.ReportID, response); err != nil {
			return fmt.Errorf("failed to record forms response: %w", err)
		}
	}

	return d.deliveries.MarkDelivered(ctx, record.ID, map[string]interface{}{
		delivery.MetaFormsResponse: response,
	})
}

// AttachTags runs the detached ticket-tagging job. Failures here never roll
// back the ticket creation that scheduled it.
func (d *Dispatcher) AttachTags(ctx context.Context, integrationID uuid.UUID, ticketToken string, tags []string) error {
	integration, err := d.integrations.GetIntegration(ctx, integrationID)
	if errors.Is(err, registry.ErrIntegrationNotFound) {
		logger.Log.WithError(err).WithField("integration_id", integrationID).
			Error("integration missing for tag attachment")
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to load integration: %w", err)
	}

	client := d.clients.Ticketing(integration)
	return d.withRetry(ctx, func() error {
		return client.AttachTags(ctx, ticketToken, tags)
	})
}

func (d *Dispatcher) enqueueTags(ctx context.Context, integrationID uuid.UUID, token string, tags []string) {
	if len(tags) == 0 {
		return
	}
	err := d.queue.Enqueue(ctx, queue.JobAttachTags, map[string]interface{}{
		"integration_id": integrationID.String(),
		"ticket_token":   token,
		"tags":           tags,
	}, 0)
	if err != nil {
		// Tagging is best-effort; the ticket itself is already up.
		logger.Log.WithError(err).WithField("ticket_token", token).
			Error("failed to enqueue tag attachment")
	}
}

func (d *Dispatcher) withRetry(ctx context.Context, fn func() error) error {
	return httpclient.Retry(ctx, d.retries, d.backoff, upstream.IsTransient, fn)
}

// senderAddr builds the reply-to address from the integration's from_email
// pattern, e.g. "reports+%s@example.org" filled with the record id.
func (d *Dispatcher) senderAddr(record *delivery.RecordModel) string {
	pattern := record.Integration.Detail("from_email")
	if pattern == "" {
		return record.FromAddr
	}
	return fmt.Sprintf(pattern, record.ID)
}

func subjectFor(record *delivery.RecordModel) string {
	return fmt.Sprintf("Report from %s", record.FromAddr)
}
