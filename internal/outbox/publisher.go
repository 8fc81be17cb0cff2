package outbox

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

const (
	defaultTick  = time.Second
	defaultBatch = 100
)

// MessageWriter is implemented by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// Publisher relays committed outbox rows to Kafka. Delivery is at least once:
// a crash between write and mark re-sends the event.
type Publisher struct {
	repo   Repository
	writer MessageWriter
	tick   time.Duration
	batch  int
}

func NewPublisher(repo Repository, writer MessageWriter) *Publisher {
	return &Publisher{
		repo:   repo,
		writer: writer,
		tick:   defaultTick,
		batch:  defaultBatch,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	log.Info().Dur("tick", p.tick).Msg("outbox: publisher started")
	for {
		select {
		case <-ticker.C:
			p.PublishPending(ctx)
		case <-ctx.Done():
			log.Info().Msg("outbox: publisher stopped")
			return
		}
	}
}

// PublishPending sends one batch and returns how many events were marked processed.
func (p *Publisher) PublishPending(ctx context.Context) int {
	events, err := p.repo.FetchUnprocessed(ctx, p.batch)
	if err != nil {
		log.Error().Err(err).Msg("outbox: failed to fetch events")
		return 0
	}

	published := 0
	for _, e := range events {
		msg := kafka.Message{
			Key:   []byte(e.AggregateID.String()),
			Value: e.Payload,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(e.EventType)},
			},
			Time: e.CreatedAt,
		}
		if err := p.writer.WriteMessages(ctx, msg); err != nil {
			log.Error().Err(err).Int64("event_id", e.ID).Str("event_type", e.EventType).Msg("outbox: failed to publish event")
			// keep per-aggregate order: stop at the first failure
			return published
		}

		if err := p.repo.MarkProcessed(ctx, e.ID); err != nil {
			log.Error().Err(err).Int64("event_id", e.ID).Msg("outbox: failed to mark event processed")
			return published
		}
		published++
	}

	return published
}
