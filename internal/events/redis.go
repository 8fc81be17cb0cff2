package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const CartChangedChannel = "cart-changed"

// RedisBroker fans cart-changed notifications out across server instances.
// Publishing goes through Redis; every instance relays what it receives into
// its local Hub, so local subscribers are served by the same path.
type RedisBroker struct {
	client *redis.Client
	local  *Hub
}

func NewRedisBroker(client *redis.Client, local *Hub) *RedisBroker {
	return &RedisBroker{client: client, local: local}
}

func (b *RedisBroker) Subscribe(userID uuid.UUID) (<-chan CartChanged, func()) {
	return b.local.Subscribe(userID)
}

func (b *RedisBroker) PublishCartChanged(ctx context.Context, userID uuid.UUID) {
	ev := CartChanged{UserID: userID, At: time.Now().UTC()}

	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("events: failed to marshal cart-changed")
		b.local.deliver(ev)
		return
	}

	if err := b.client.Publish(ctx, CartChangedChannel, payload).Err(); err != nil {
		log.Warn().Err(err).Stringer("user_id", userID).Msg("events: redis publish failed, delivering locally only")
		b.local.deliver(ev)
	}
}

// Start subscribes to the Redis channel and relays messages until ctx is done.
// It returns once the subscription is confirmed.
func (b *RedisBroker) Start(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, CartChangedChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("events: failed to subscribe to %s: %w", CartChangedChannel, err)
	}

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev CartChanged
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Warn().Err(err).Msg("events: dropping malformed cart-changed message")
					continue
				}
				b.local.deliver(ev)
			}
		}
	}()

	log.Info().Str("channel", CartChangedChannel).Msg("events: relaying cart-changed from redis")
	return nil
}
