package reports

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// CategoryModel is a label a report can be filed against. Order is a UI sort
// hint only.
type CategoryModel struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Name      string            `gorm:"size:100"`
	Order     int               `gorm:"column:sort_order;default:1000"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (CategoryModel) TableName() string {
	return "categories"
}

// ReportModel is one inbound field incident. Creation is a two-step write:
// the base row is inserted first and the category association lands in a
// follow-up request, so consumers must tolerate a category-less report.
//
// Correlation state lives in typed columns rather than the metadata map:
// CorrelationToken is the ticketing system's identifier for the open case,
// ReplyCount counts reconciled agent replies, and LastUpstreamResponse holds
// the forms service's response body once a submission has been accepted.
// Metadata remains for unstructured channel data only.
type ReportModel struct {
	ID                   uuid.UUID `gorm:"type:uuid;primaryKey"`
	ContactKey           string    `gorm:"size:36;index"`
	ToAddr               string    `gorm:"size:255"`
	ProjectID            uuid.UUID `gorm:"type:uuid;index"`
	Description          string    `gorm:"type:text"`
	IncidentAt           *time.Time
	Latitude             float64
	Longitude            float64
	CorrelationToken     *string           `gorm:"size:255;index"`
	ReplyCount           int               `gorm:"default:0"`
	LastUpstreamResponse *string           `gorm:"type:text"`
	Metadata             datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt            time.Time
	UpdatedAt            time.Time

	Categories []CategoryModel `gorm:"many2many:report_categories"`
}

func (ReportModel) TableName() string {
	return "reports"
}

// CategoryNames returns the names of the loaded category association,
// ordered by the category sort hint. Ticket bodies and tag lists are built
// from this, so the order must not depend on how the association was loaded.
func (m *ReportModel) CategoryNames() []string {
	ordered := make([]CategoryModel, len(m.Categories))
	copy(ordered, m.Categories)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Order < ordered[j].Order
	})

	names := make([]string, 0, len(ordered))
	for _, c := range ordered {
		names = append(names, c.Name)
	}
	return names
}
