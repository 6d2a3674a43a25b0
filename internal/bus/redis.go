// Package bus implements the messaging backbone on Redis Streams. Delivery
// is at-least-once: messages are acked only after the handler returns nil,
// and stale pending entries are reclaimed from dead consumers.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Veraticus/ads-placement-excluder/internal/metrics"
)

// payloadField is the single stream entry field carrying the JSON message.
const payloadField = "payload"

// RedisBus publishes messages onto Redis Streams.
type RedisBus struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisBus creates a publisher over an existing client.
func NewRedisBus(client *redis.Client, logger *slog.Logger) *RedisBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBus{client: client, logger: logger}
}

// NewClient connects to Redis from a URL and verifies the connection.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Publish appends one JSON message to the topic stream.
func (b *RedisBus) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message for %s: %w", topic, err)
	}

	err = b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: map[string]any{payloadField: string(data)},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	metrics.MessagesPublished.WithLabelValues(topic).Inc()
	b.logger.Debug("message published", "topic", topic, "bytes", len(data))
	return nil
}

// Handler processes one message payload. Returning nil acks the message;
// returning an error leaves it pending for redelivery.
type Handler func(ctx context.Context, payload []byte) error

// ConsumerOptions configures a stream consumer.
type ConsumerOptions struct {
	Topic       string
	Group       string
	Consumer    string
	BlockTime   time.Duration
	ReclaimIdle time.Duration
}

// Consumer reads one topic inside a consumer group.
type Consumer struct {
	client *redis.Client
	logger *slog.Logger
	opts   ConsumerOptions
}

// NewConsumer creates a consumer. The group is created on first Run.
func NewConsumer(client *redis.Client, opts ConsumerOptions, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BlockTime <= 0 {
		opts.BlockTime = 5 * time.Second
	}
	if opts.ReclaimIdle <= 0 {
		opts.ReclaimIdle = 5 * time.Minute
	}
	return &Consumer{client: client, opts: opts, logger: logger}
}

// Run consumes until the context is canceled. Each message is handled at
// least once; handler failures are logged and the message stays pending
// until a later read or reclaim retries it.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}

	c.logger.Info("consumer started",
		"topic", c.opts.Topic,
		"group", c.opts.Group,
		"consumer", c.opts.Consumer)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.reclaim(ctx, handler)

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.opts.Group,
			Consumer: c.opts.Consumer,
			Streams:  []string{c.opts.Topic, ">"},
			Count:    10,
			Block:    c.opts.BlockTime,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // block timeout, nothing new
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			c.logger.Error("stream read failed", "topic", c.opts.Topic, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				c.handle(ctx, handler, msg)
			}
		}
	}
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.opts.Topic, c.opts.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group for %s: %w", c.opts.Topic, err)
	}
	return nil
}

// reclaim takes over messages another consumer read but never acked.
func (c *Consumer) reclaim(ctx context.Context, handler Handler) {
	msgs, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.opts.Topic,
		Group:    c.opts.Group,
		Consumer: c.opts.Consumer,
		MinIdle:  c.opts.ReclaimIdle,
		Start:    "0",
		Count:    10,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		if !errors.Is(err, context.Canceled) {
			c.logger.Warn("pending reclaim failed", "topic", c.opts.Topic, "error", err)
		}
		return
	}
	for _, msg := range msgs {
		c.handle(ctx, handler, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, handler Handler, msg redis.XMessage) {
	raw, ok := msg.Values[payloadField].(string)
	if !ok {
		// Unreadable entry: ack so it cannot wedge the stream.
		c.logger.Error("discarding message without payload", "topic", c.opts.Topic, "id", msg.ID)
		_ = c.client.XAck(ctx, c.opts.Topic, c.opts.Group, msg.ID).Err()
		return
	}

	metrics.MessagesConsumed.WithLabelValues(c.opts.Topic).Inc()

	if err := handler(ctx, []byte(raw)); err != nil {
		metrics.HandlerFailures.WithLabelValues(c.opts.Topic).Inc()
		c.logger.Error("message handling failed, leaving pending",
			"topic", c.opts.Topic,
			"id", msg.ID,
			"error", err)
		return
	}

	if err := c.client.XAck(ctx, c.opts.Topic, c.opts.Group, msg.ID).Err(); err != nil {
		// The handler succeeded; redelivery is safe because every stage
		// is idempotent.
		c.logger.Warn("ack failed", "topic", c.opts.Topic, "id", msg.ID, "error", err)
	}
}
