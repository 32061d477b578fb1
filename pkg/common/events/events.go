package events

import "time"

// Event kinds published on the report topic. The trigger engine reacts to
// both; everything else on the topic is ignored.
const (
	ReportCreated = "report.created"
	ReportUpdated = "report.updated"
)

// Event is the envelope written to Kafka for every report mutation. Data
// carries at minimum the report_id; consumers reload the row rather than
// trusting a possibly stale snapshot.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}
