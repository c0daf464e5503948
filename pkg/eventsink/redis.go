// Package eventsink forwards call lifecycle events to Redis pub/sub and to
// WebSocket clients.
package eventsink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"github.com/birddigital/callmanager/pkg/manager"
)

const publishTimeout = 5 * time.Second

// RedisPublisher publishes every event it handles as JSON on a Redis channel
type RedisPublisher struct {
	client  *redis.Client
	channel string
	log     logrus.FieldLogger
}

// NewRedisPublisher connects to redisURL (redis:// or rediss://)
func NewRedisPublisher(redisURL, channel string, log logrus.FieldLogger) (*RedisPublisher, error) {
	if redisURL == "" {
		return nil, eris.New("redis url not configured")
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, eris.Wrap(err, "invalid redis url")
	}
	return NewRedisPublisherWithClient(redis.NewClient(opt), channel, log), nil
}

// NewRedisPublisherWithClient publishes through an existing client
func NewRedisPublisherWithClient(client *redis.Client, channel string, log logrus.FieldLogger) *RedisPublisher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RedisPublisher{
		client:  client,
		channel: channel,
		log:     log.WithFields(logrus.Fields{"component": "redis-publisher", "channel": channel}),
	}
}

// Ping checks the connection
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return eris.Wrap(p.client.Ping(ctx).Err(), "redis ping failed")
}

// HandleEvent publishes e. Failures are logged.
func (p *RedisPublisher) HandleEvent(e manager.Event) {
	log := p.log.WithFields(logrus.Fields{"event_id": e.ID, "event": e.Kind, "number": e.Record.To})

	payload, err := json.Marshal(e)
	if err != nil {
		log.WithError(err).Error("failed to encode event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		log.WithError(err).Warn("failed to publish event")
		return
	}
	log.Debug("published event")
}

// Close closes the client
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
