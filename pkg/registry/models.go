package registry

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Integration kinds the dispatcher can target.
const (
	KindTicketing = "ticketing"
	KindForms     = "forms"
	KindMessaging = "messaging"
)

// ProjectModel is a reporting project that owns integrations and reports.
type ProjectModel struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Code      string            `gorm:"size:20;index"`
	Name      string            `gorm:"size:100"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ProjectModel) TableName() string {
	return "projects"
}

// IntegrationModel holds the per-project configuration of one third-party
// target. Details is a free-form credential map whose keys depend on the
// kind: messaging wants api_url/account_key/conversation_key/conversation_token,
// ticketing wants api_url/api_key/mailbox_id/from_email, forms wants
// url/username/password/form_id.
//
// Dispatch logic expects at most one active integration per (project, kind);
// nothing enforces that at the schema level.
type IntegrationModel struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey"`
	ProjectID uuid.UUID         `gorm:"type:uuid;index"`
	Kind      string            `gorm:"size:16;index"`
	Details   datatypes.JSONMap `gorm:"type:jsonb"`
	Active    bool              `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Project ProjectModel `gorm:"foreignKey:ProjectID"`
}

func (IntegrationModel) TableName() string {
	return "integrations"
}

// Detail returns a string credential from the details map, or "" when
// absent or not a string.
func (m *IntegrationModel) Detail(key string) string {
	if m.Details == nil {
		return ""
	}
	if v, ok := m.Details[key].(string); ok {
		return v
	}
	return ""
}
