// Package notify publishes event lifecycle notifications.
//
// Notifications are delivered best-effort: the event service logs publish
// failures and carries on. Payloads never include gift pairs.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/example/secret-santa/internal/application"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "santa.events"

// ErrPublishFailed wraps errors returned by the message broker.
var ErrPublishFailed = errors.New("notify: publish failed")

// Envelope is the JSON document published for every notification.
type Envelope struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	EventID     string    `json:"event_id"`
	ActorID     string    `json:"actor_id"`
	AttenderIDs []string  `json:"attender_ids"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// NewEnvelope builds the wire form of a notification.
func NewEnvelope(id string, n application.Notification) Envelope {
	attenders := n.AttenderIDs
	if attenders == nil {
		attenders = []string{}
	}
	return Envelope{
		ID:          id,
		Type:        string(n.Kind),
		EventID:     n.EventID,
		ActorID:     n.ActorID,
		AttenderIDs: attenders,
		OccurredAt:  n.OccurredAt.UTC(),
	}
}

// Publisher is the subset of *redis.Client used to publish.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisNotifier publishes notifications on a Redis pub/sub channel.
type RedisNotifier struct {
	client      Publisher
	channel     string
	idGenerator func() string
	logger      *slog.Logger
}

var _ application.Notifier = (*RedisNotifier)(nil)

// NewRedisNotifier constructs a notifier. An empty channel uses DefaultChannel.
func NewRedisNotifier(client Publisher, channel string, logger *slog.Logger) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisNotifier{
		client:      client,
		channel:     channel,
		idGenerator: uuid.NewString,
		logger:      logger.With("component", "notify", "channel", channel),
	}
}

// Notify marshals the notification and publishes it.
func (n *RedisNotifier) Notify(ctx context.Context, notification application.Notification) error {
	if n == nil || n.client == nil {
		return fmt.Errorf("%w: notifier not configured", ErrPublishFailed)
	}

	envelope := NewEnvelope(n.idGenerator(), notification)
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	receivers, err := n.client.Publish(ctx, n.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	n.logger.DebugContext(ctx, "notification published",
		"notification_id", envelope.ID,
		"notification_kind", envelope.Type,
		"event_id", envelope.EventID,
		"receivers", receivers,
	)
	return nil
}

// Dial connects to the Redis server behind url and verifies it answers.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// LogNotifier writes notifications to a logger. It is used when no broker is configured.
type LogNotifier struct {
	logger *slog.Logger
}

var _ application.Notifier = (*LogNotifier)(nil)

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notify")}
}

// Notify logs the notification at info level.
func (n *LogNotifier) Notify(ctx context.Context, notification application.Notification) error {
	n.logger.InfoContext(ctx, "lifecycle notification",
		"notification_kind", string(notification.Kind),
		"event_id", notification.EventID,
		"actor_id", notification.ActorID,
		"attender_count", len(notification.AttenderIDs),
	)
	return nil
}
