package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Veraticus/ads-placement-excluder/internal/bus"
	"github.com/Veraticus/ads-placement-excluder/internal/model"
)

// Handler adapters decode stream payloads into typed messages. A payload
// that does not decode is acked and dropped: redelivering it would fail the
// same way forever.

// Handler returns the stream handler for the dispatch topic.
func (r *Reporter) Handler() bus.Handler {
	return func(ctx context.Context, payload []byte) error {
		var msg model.AccountMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			logDecodeFailure(r.logger, model.TopicDispatch, err)
			return nil
		}
		return r.Handle(ctx, msg)
	}
}

// Handler returns the stream handler for the enrich topic.
func (e *Enricher) Handler() bus.Handler {
	return func(ctx context.Context, payload []byte) error {
		var msg model.EnrichMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			logDecodeFailure(e.logger, model.TopicEnrich, err)
			return nil
		}
		return e.Handle(ctx, msg)
	}
}

// Handler returns the stream handler for the exclude topic.
func (x *Excluder) Handler() bus.Handler {
	return func(ctx context.Context, payload []byte) error {
		var msg model.ExcludeMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			logDecodeFailure(x.logger, model.TopicExclude, err)
			return nil
		}
		_, err := x.Handle(ctx, msg)
		return err
	}
}

func logDecodeFailure(logger *slog.Logger, topic string, err error) {
	logger.Error("discarding undecodable message", "topic", topic, "error", err)
}
