package events

import (
	"context"

	"github.com/atvirokodosprendimai/erpcore/internal/core/domain"
	"go.uber.org/zap"
)

// LogPublisher writes envelopes to the structured log. Used when no webhook
// endpoint is configured.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, topic string, event domain.AuditEnvelope) error {
	p.log.Info("outbox publish",
		zap.String("topic", topic),
		zap.String("audit_id", event.AuditID),
		zap.String("event", event.Event),
		zap.String("tenant", event.TenantID),
		zap.String("subject", event.SubjectType+"/"+event.SubjectID),
	)
	return nil
}
