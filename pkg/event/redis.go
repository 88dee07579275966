package event

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/choraleia/threadwriter/pkg/models"
	"github.com/choraleia/threadwriter/pkg/utils"
)

// RedisBridge relays stream events through a redis pub/sub channel so that
// every server instance with a document open receives them.
type RedisBridge struct {
	client  *redis.Client
	channel string
	emitter *Emitter
	logger  *slog.Logger
}

// NewRedisBridge creates a bridge publishing on channel and re-emitting
// received events on emitter.
func NewRedisBridge(client *redis.Client, channel string, emitter *Emitter) *RedisBridge {
	return &RedisBridge{
		client:  client,
		channel: channel,
		emitter: emitter,
		logger:  utils.GetLogger().With("component", "redis-bridge", "channel", channel),
	}
}

// Publish sends ev to all subscribed instances, this one included.
func (b *RedisBridge) Publish(ctx context.Context, ev models.StreamEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encode stream event")
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return errors.Wrapf(err, "publish to %s", b.channel)
	}
	return nil
}

// Run subscribes to the channel and emits every received event until ctx
// is done.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return errors.Wrapf(err, "subscribe to %s", b.channel)
	}
	b.logger.Info("Redis stream bridge subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			ev, err := DecodeStreamEvent(msg.Payload)
			if err != nil {
				b.logger.Warn("Dropping malformed stream event", "error", err)
				continue
			}
			b.emitter.Emit(StreamEvent{StreamEvent: ev})
		}
	}
}

// DecodeStreamEvent parses a stream event payload.
func DecodeStreamEvent(payload string) (models.StreamEvent, error) {
	var ev models.StreamEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return models.StreamEvent{}, errors.Wrap(err, "decode stream event")
	}
	if ev.Status == "" && ev.Type == "" {
		return models.StreamEvent{}, errors.New("stream event has neither status nor type")
	}
	return ev, nil
}
