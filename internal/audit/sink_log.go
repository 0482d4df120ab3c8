package audit

import (
	"context"
	"log/slog"
)

// LogSink writes events to the structured log. Used when no Kafka brokers
// are configured so audit trails still land somewhere durable enough for
// development.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Append(ctx context.Context, event Event) error {
	s.logger.InfoContext(ctx, "audit",
		"event_id", event.ID,
		"action", event.Action,
		"org_id", event.OrgID,
		"actor_id", event.ActorID,
		"domain", event.Domain,
		"request_id", event.RequestID,
	)
	return nil
}
