package delivery

import (
	"errors"
	"fmt"
	"time"

	"github.com/fieldsignal/relay/pkg/registry"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Metadata keys assigned by the dispatcher.
const (
	MetaGatewayMessageID = "gateway_message_id"
	MetaTicketToken      = "ticket_token"
	MetaFormsResponse    = "forms_response"
)

var (
	ErrMissingIntegration = errors.New("delivery requires an integration")
	ErrMissingMessage     = errors.New("delivery requires a message body")
)

// RecordModel is one durable unit of outbound (or reconciled inbound) work.
// It is created by the trigger engine, the reconciliation listener or a user
// message post, and flipped to delivered exactly once by the dispatcher. Rows
// are never deleted.
type RecordModel struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey"`
	IntegrationID uuid.UUID  `gorm:"type:uuid;index"`
	ReportID      *uuid.UUID `gorm:"type:uuid;index"`
	// Kind is the target integration kind for this record, which decides
	// the dispatch branch.
	Kind       string `gorm:"size:16;index"`
	Message    string `gorm:"type:text"`
	ContactKey string `gorm:"size:36"`
	FromAddr   string `gorm:"size:255"`
	ToAddr     string `gorm:"size:255"`
	Delivered  bool   `gorm:"default:false;index"`
	// Metadata stores identifiers assigned during dispatch, like the
	// gateway message id or the created ticket token.
	Metadata  datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Integration registry.IntegrationModel `gorm:"foreignKey:IntegrationID"`
}

func (RecordModel) TableName() string {
	return "deliveries"
}

// Validate checks the record is complete enough to dispatch.
func (m *RecordModel) Validate() error {
	if m.IntegrationID == uuid.Nil {
		return ErrMissingIntegration
	}
	if m.Message == "" {
		return ErrMissingMessage
	}
	switch m.Kind {
	case registry.KindTicketing, registry.KindForms, registry.KindMessaging:
		return nil
	default:
		return fmt.Errorf("unknown delivery kind %q", m.Kind)
	}
}
