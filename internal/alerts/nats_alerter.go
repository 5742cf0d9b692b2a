package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// natsAlertMessage is the wire shape published to cfg.NATS.AlertSubject,
// letting any external subscriber (a dashboard, a chat-ops bot) observe
// the same alerts the log/console channels render.
type natsAlertMessage struct {
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Severity  string                 `json:"severity"`
	Timestamp string                 `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NATSAlerter publishes every alert it receives to a fixed NATS subject,
// grounded on the scheduler's nats-io/nats.go connection pattern
// (internal/scheduler/scheduler.go's SetupControlSubscription). It never
// subscribes or blocks: Publish is fire-and-forget, matching §6's
// "external subscribers observe, they don't gate" alert fan-out.
type NATSAlerter struct {
	conn    *nats.Conn
	subject string
}

// NewNATSAlerter connects to natsURL and returns an Alerter that
// publishes to subject. Returns an error if the connection cannot be
// established; the composition root logs and falls back to log+console
// only rather than failing startup over an unreachable alert bus.
func NewNATSAlerter(natsURL, subject string) (*NATSAlerter, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS for alerts: %w", err)
	}
	return &NATSAlerter{conn: conn, subject: subject}, nil
}

// Send publishes alert as JSON to the configured subject.
func (a *NATSAlerter) Send(ctx context.Context, alert Alert) error {
	payload := natsAlertMessage{
		Title:     alert.Title,
		Message:   alert.Message,
		Severity:  string(alert.Severity),
		Timestamp: alert.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
		Metadata:  alert.Metadata,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling alert for NATS: %w", err)
	}
	return a.conn.Publish(a.subject, data)
}

// Close drains and closes the underlying NATS connection.
func (a *NATSAlerter) Close() {
	a.conn.Close()
}

var _ Alerter = (*NATSAlerter)(nil)
