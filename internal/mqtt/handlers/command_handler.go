package handlers

import (
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	mqtt2 "sonar-ranger/internal/mqtt"
)

// SamplerControl is what a command can do to a running sampling loop.
type SamplerControl interface {
	RequestSample()
	SetInterval(d time.Duration)
}

// CommandHandler routes per-sensor command messages to the matching sampler.
// Register all samplers before subscribing; the map is read-only afterwards.
type CommandHandler struct {
	topicManager *mqtt2.TopicManager
	samplers     map[string]SamplerControl
	logger       zerolog.Logger
}

func NewCommandHandler(topicManager *mqtt2.TopicManager, logger zerolog.Logger) *CommandHandler {
	return &CommandHandler{
		topicManager: topicManager,
		samplers:     make(map[string]SamplerControl),
		logger:       logger,
	}
}

func (h *CommandHandler) Register(sensor string, ctrl SamplerControl) {
	h.samplers[sensor] = ctrl
}

func (h *CommandHandler) HandleMessage(client mqtt.Client, msg mqtt.Message) {
	topic := msg.Topic()
	payload := msg.Payload()

	sensor, err := h.topicManager.ExtractSensorName(topic)
	if err != nil {
		h.logger.Error().Err(err).Str("topic", topic).Msg("Could not extract sensor name from topic")
		return
	}

	ctrl, ok := h.samplers[sensor]
	if !ok {
		h.logger.Warn().Str("sensor", sensor).Msg("Command for unknown sensor")
		return
	}

	var in mqtt2.IncomingMessage
	if err := json.Unmarshal(payload, &in); err != nil {
		h.logger.Error().Err(err).
			Str("topic", topic).
			Str("payload", string(payload)).
			Msg("Could not parse command message")
		return
	}

	if err := in.Validate(); err != nil {
		h.logger.Warn().Err(err).Str("topic", topic).Msg("Invalid command message")
		return
	}

	switch in.Action {
	case mqtt2.ActionSample:
		ctrl.RequestSample()
		h.logger.Info().Str("sensor", sensor).Msg("On-demand sample requested")

	case mqtt2.ActionSetInterval:
		raw, _ := in.Data["interval"].(string)
		interval, err := time.ParseDuration(raw)
		if err != nil || interval <= 0 {
			h.logger.Warn().
				Str("sensor", sensor).
				Str("interval", raw).
				Msg("Ignoring bad sampling interval")
			return
		}
		ctrl.SetInterval(interval)
		h.logger.Info().
			Str("sensor", sensor).
			Dur("interval", interval).
			Msg("Sampling interval updated")

	default:
		h.logger.Warn().
			Str("sensor", sensor).
			Str("action", string(in.Action)).
			Msg("Unknown command action")
	}
}
