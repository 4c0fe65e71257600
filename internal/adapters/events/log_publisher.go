package events

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
)

// LogPublisher writes dispatched events to the log. It is the publisher
// used when no webhook is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "event_log").Logger()}
}

func (p *LogPublisher) Publish(_ context.Context, topic string, event domain.EventEnvelope) error {
	p.logger.Info().
		Str("topic", topic).
		Str("event_id", event.EventID).
		Str("event_type", event.EventType).
		Str("tenant_id", event.TenantID).
		Str("entity", event.EntityType+"/"+event.EntityID).
		Str("actor", event.Actor).
		Msg("event published")
	return nil
}
