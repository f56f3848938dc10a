package mqtt

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sonar-ranger/internal/models"
)

// Publisher wraps readings in the service envelope and routes them to the
// per-sensor reading topic.
type Publisher struct {
	client       *Client
	topicManager *TopicManager
	source       string
	logger       zerolog.Logger
}

func NewPublisher(client *Client, topicManager *TopicManager, source string, logger zerolog.Logger) *Publisher {
	return &Publisher{
		client:       client,
		topicManager: topicManager,
		source:       source,
		logger:       logger,
	}
}

func (p *Publisher) PublishReading(reading *models.RangeReading) error {
	msg := OutgoingMessage{
		ID:        uuid.NewString(),
		Source:    p.source,
		Data:      reading,
		Timestamp: time.Now(),
	}

	topic := p.topicManager.GetReadingTopic(reading.Sensor)
	if err := p.client.PublishJSON(topic, msg); err != nil {
		return err
	}

	p.logger.Debug().
		Str("topic", topic).
		Str("outcome", string(reading.Outcome)).
		Msg("reading published")

	return nil
}
