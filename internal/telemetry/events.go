package telemetry

import (
	"context"
	"fmt"

	"github.com/nerrad567/swncrew-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/swncrew-core/internal/mission"
)

// Publisher sends JSON payloads to MQTT topics. Satisfied by *mqtt.Client.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// EventPublisher republishes completion records on
// swncrew/core/mission/completed, where an external classifier picks
// them up.
type EventPublisher struct {
	pub   Publisher
	topic string
}

// NewEventPublisher creates an EventPublisher.
func NewEventPublisher(pub Publisher) *EventPublisher {
	return &EventPublisher{pub: pub, topic: mqtt.Topics{}.MissionCompleted()}
}

// RecordCompletedMission publishes c as JSON.
func (p *EventPublisher) RecordCompletedMission(ctx context.Context, c mission.Completed) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.pub.PublishJSON(p.topic, c, false); err != nil {
		return fmt.Errorf("publishing completed mission %s: %w", c.Mission.ID, err)
	}
	return nil
}
