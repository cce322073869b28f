package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"hancock/internal/notify"
)

// messageReader is the part of *kafka.Reader the consumer needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// consumer hands each Kafka message to its sinks and commits the offset only
// after delivery finished, so a crash redelivers instead of dropping.
type consumer struct {
	reader messageReader
	// deliver sends to the mailer webhook with retries. Nil skips delivery.
	deliver func(ctx context.Context, msg notify.Message) error
	// push ships the raw message to Loki. Nil skips it.
	push   func(ctx context.Context, raw []byte) error
	logger *slog.Logger
}

// run consumes until ctx is done.
func (c *consumer) run(ctx context.Context) {
	for {
		km, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("worker: kafka fetch error", "error", err)
			continue
		}
		if !c.handle(ctx, km) {
			return
		}
	}
}

// handle returns false when ctx ended before km was delivered; km is left
// uncommitted for the next consumer.
func (c *consumer) handle(ctx context.Context, km kafka.Message) bool {
	msg, err := notify.DecodeMessage(km.Value)
	if err != nil {
		c.logger.Warn("worker: skipping malformed message", "offset", km.Offset, "error", err)
		c.commit(ctx, km)
		return true
	}

	if c.push != nil {
		pushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := c.push(pushCtx, km.Value); err != nil {
			c.logger.Warn("worker: loki push failed", "sid", msg.SID, "error", err)
		}
		cancel()
	}
	if c.deliver != nil {
		if err := c.deliver(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return false
			}
			c.logger.Error("worker: notification dropped after retries", "sid", msg.SID, "message_id", msg.ID, "offset", km.Offset, "error", err)
		}
	}
	c.commit(ctx, km)
	return true
}

// commit outlives ctx briefly so a delivered message is not redelivered on shutdown.
func (c *consumer) commit(ctx context.Context, km kafka.Message) {
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.reader.CommitMessages(commitCtx, km); err != nil {
		c.logger.Error("worker: kafka commit failed", "offset", km.Offset, "error", err)
	}
}
