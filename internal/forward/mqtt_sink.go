package forward

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/jimi-tracker/internal/infrastructure/mqtt"
	"github.com/nerrad567/jimi-tracker/internal/telemetry"
)

// RetainedPublisher is the part of *mqtt.Client the MQTT sink needs.
type RetainedPublisher interface {
	PublishRetained(topic string, payload []byte) error
}

// MQTTSink publishes each point, retained, to jimi/core/device/{id}/state.
type MQTTSink struct {
	pub RetainedPublisher
}

// NewMQTTSink returns a sink publishing through pub.
func NewMQTTSink(pub RetainedPublisher) *MQTTSink {
	return &MQTTSink{pub: pub}
}

// Name implements Sink.
func (s *MQTTSink) Name() string { return "mqtt" }

// Push implements Sink. paho applies its own publish timeout, so ctx is
// only checked before publishing.
func (s *MQTTSink) Push(ctx context.Context, p telemetry.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding point: %w", err)
	}

	return s.pub.PublishRetained(mqtt.Topics{}.CoreDeviceState(p.DeviceID), payload)
}
