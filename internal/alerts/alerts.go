// Package alerts implements the AlertSink adapter (§6): user-facing
// notifications for a generated signal, a daily digest, and a learning
// event, fanned out to every configured channel (log, console, and the
// NATS alert subject for external subscribers).
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/signalforge/core/internal/adapters"
)

// Severity levels for alerts
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Alert represents an alert message
type Alert struct {
	Title     string
	Message   string
	Severity  Severity
	Timestamp time.Time
	Metadata  map[string]interface{}
}

// Alerter defines the interface for sending alerts
type Alerter interface {
	Send(ctx context.Context, alert Alert) error
}

// Manager manages multiple alert channels
type Manager struct {
	alerters []Alerter
}

// NewManager creates a new alert manager
func NewManager(alerters ...Alerter) *Manager {
	return &Manager{
		alerters: alerters,
	}
}

// Send sends an alert to all configured alerters
func (m *Manager) Send(ctx context.Context, alert Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	var lastErr error
	for _, alerter := range m.alerters {
		if err := alerter.Send(ctx, alert); err != nil {
			log.Error().
				Err(err).
				Str("title", alert.Title).
				Msg("Failed to send alert")
			lastErr = err
		}
	}

	return lastErr
}

// SendCritical is a convenience method for sending critical alerts
func (m *Manager) SendCritical(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{
		Title:    title,
		Message:  message,
		Severity: SeverityCritical,
		Metadata: metadata,
	})
}

// SendWarning is a convenience method for sending warning alerts
func (m *Manager) SendWarning(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{
		Title:    title,
		Message:  message,
		Severity: SeverityWarning,
		Metadata: metadata,
	})
}

// SendInfo is a convenience method for sending info alerts
func (m *Manager) SendInfo(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{
		Title:    title,
		Message:  message,
		Severity: SeverityInfo,
		Metadata: metadata,
	})
}

// LogAlerter logs alerts using zerolog
type LogAlerter struct{}

// NewLogAlerter creates a new log-based alerter
func NewLogAlerter() *LogAlerter {
	return &LogAlerter{}
}

// Send sends an alert by logging it
func (l *LogAlerter) Send(ctx context.Context, alert Alert) error {
	event := log.Log()

	switch alert.Severity {
	case SeverityCritical:
		event = log.Error()
	case SeverityWarning:
		event = log.Warn()
	case SeverityInfo:
		event = log.Info()
	}

	if alert.Metadata != nil {
		for key, value := range alert.Metadata {
			event = event.Interface(key, value)
		}
	}

	event.
		Str("alert_title", alert.Title).
		Str("alert_severity", string(alert.Severity)).
		Time("alert_time", alert.Timestamp).
		Msg(fmt.Sprintf("ALERT: %s", alert.Message))

	return nil
}

// ConsoleAlerter prints alerts to console with prominent formatting
type ConsoleAlerter struct{}

// NewConsoleAlerter creates a new console-based alerter
func NewConsoleAlerter() *ConsoleAlerter {
	return &ConsoleAlerter{}
}

// Send sends an alert by printing to console
func (c *ConsoleAlerter) Send(ctx context.Context, alert Alert) error {
	banner := ""
	switch alert.Severity {
	case SeverityCritical:
		banner = "*** CRITICAL ALERT ***"
	case SeverityWarning:
		banner = "--- WARNING ALERT ---"
	case SeverityInfo:
		banner = "--- INFO ALERT ---"
	}

	fmt.Println()
	fmt.Println("========================================")
	fmt.Println(banner)
	fmt.Println("========================================")
	fmt.Printf("Title: %s\n", alert.Title)
	fmt.Printf("Message: %s\n", alert.Message)
	fmt.Printf("Severity: %s\n", alert.Severity)
	fmt.Printf("Time: %s\n", alert.Timestamp.Format(time.RFC3339))

	if len(alert.Metadata) > 0 {
		fmt.Println("Metadata:")
		for key, value := range alert.Metadata {
			fmt.Printf("  - %s: %v\n", key, value)
		}
	}

	fmt.Println("========================================")
	fmt.Println()

	return nil
}

// Default global alert manager (can be replaced with custom configuration)
var defaultManager *Manager

func init() {
	defaultManager = NewManager(
		NewLogAlerter(),
		NewConsoleAlerter(),
	)
}

// GetDefaultManager returns the default alert manager
func GetDefaultManager() *Manager {
	return defaultManager
}

// SetDefaultManager sets the default alert manager
func SetDefaultManager(manager *Manager) {
	defaultManager = manager
}

// Sink implements adapters.AlertSink by rendering the three wire payloads
// (§6) into Alert messages and fanning them out through a Manager.
type Sink struct {
	manager *Manager
}

// NewSink builds a Sink over the given channels. With no channels it falls
// back to the log+console default manager.
func NewSink(alerters ...Alerter) *Sink {
	if len(alerters) == 0 {
		return &Sink{manager: defaultManager}
	}
	return &Sink{manager: NewManager(alerters...)}
}

var _ adapters.AlertSink = (*Sink)(nil)

// SendSignalAlert notifies on a single newly generated signal.
func (s *Sink) SendSignalAlert(ctx context.Context, payload adapters.SignalAlertPayload) error {
	return s.manager.Send(ctx, Alert{
		Title: fmt.Sprintf("%s signal: %s", payload.Ticker, payload.SignalType),
		Message: fmt.Sprintf(
			"%s at %.2f (confidence %.0f%%), target %.2f, stop %.2f",
			payload.SignalType, payload.EntryPrice, payload.Confidence*100, payload.TargetPrice, payload.StopLoss,
		),
		Severity: severityForSignal(payload.SignalType),
		Metadata: map[string]interface{}{
			"ticker":       payload.Ticker,
			"signal_type":  payload.SignalType,
			"confidence":   payload.Confidence,
			"entry_price":  payload.EntryPrice,
			"target_price": payload.TargetPrice,
			"stop_loss":    payload.StopLoss,
			"timestamp_et": payload.TimestampET,
		},
	})
}

// SendDailySummary pushes the 08:30 digest job's batch of signals (§4.7).
func (s *Sink) SendDailySummary(ctx context.Context, signals []adapters.SignalAlertPayload) error {
	return s.manager.SendInfo(ctx, "Daily signal summary", fmt.Sprintf("%d signals generated", len(signals)), map[string]interface{}{
		"signal_count": len(signals),
	})
}

// SendLearningEvent notifies on a bias detection, freeze, or weight update
// surfaced by the learning loop (§4.6).
func (s *Sink) SendLearningEvent(ctx context.Context, payload adapters.LearningEventPayload) error {
	return s.manager.SendWarning(ctx, fmt.Sprintf("Learning event: %s", payload.EventType), payload.Reasoning, map[string]interface{}{
		"event_type": payload.EventType,
		"agent_name": payload.AgentName,
	})
}

func severityForSignal(signalType string) Severity {
	switch signalType {
	case "STRONG_BUY", "STRONG_SELL":
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
