// Package audit publishes gate decisions and task run outcomes to a
// Kafka topic so an operator can review what the agent was allowed to do.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// writerAPI is the slice of kafka.Writer the publisher needs.
type writerAPI interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes audit events. A nil Publisher is a no-op so call
// sites never need to branch on whether auditing is configured.
type Publisher struct {
	writer  writerAPI
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Publisher for the given brokers and topic.
func New(brokers []string, topic string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return &Publisher{writer: w, timeout: 5 * time.Second, logger: logger.With("component", "audit")}
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// RecordGateDecision implements the gatekeeper's audit recorder.
func (p *Publisher) RecordGateDecision(ctx context.Context, toolName, decision, reason string) {
	p.publish(ctx, "gate_decision", map[string]any{
		"tool":     toolName,
		"decision": strings.ToLower(decision),
		"reason":   reason,
	})
}

// RecordTaskRun publishes one scheduled task execution outcome.
func (p *Publisher) RecordTaskRun(ctx context.Context, taskID int64, success bool, summary string) {
	p.publish(ctx, "task_run", map[string]any{
		"task_id": taskID,
		"success": success,
		"summary": summary,
	})
}

// publish is fire-and-forget; audit failures are logged, never
// propagated into the agent path.
func (p *Publisher) publish(ctx context.Context, eventType string, fields map[string]any) {
	if p == nil || p.writer == nil {
		return
	}
	logger := p.logger
	if logger == nil {
		logger = slog.Default()
	}
	fields["event_type"] = eventType
	fields["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	payload, err := json.Marshal(fields)
	if err != nil {
		logger.Error("marshal audit event failed", "type", eventType, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%s-%d", eventType, time.Now().UnixNano())),
		Value: payload,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		logger.Error("publish audit event failed", "type", eventType, "error", err)
	}
}
