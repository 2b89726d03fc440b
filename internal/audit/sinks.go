package audit

import (
	"context"
	"encoding/json"
	"errors"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/evdms/dealer-backend/pkg/logger"
)

// LogSink writes records to the structured log.
type LogSink struct {
	logg *logger.Logger
}

func NewLogSink(logg *logger.Logger) *LogSink {
	return &LogSink{logg: logg}
}

func (s *LogSink) Write(ctx context.Context, record Record) error {
	if s == nil || s.logg == nil {
		return errors.New("log sink not configured")
	}
	fields := map[string]any{
		"audit_action": record.Action,
		"entity_type":  record.EntityType,
		"entity_id":    record.EntityID.String(),
		"actor_id":     record.ActorID.String(),
		"occurred_at":  record.OccurredAt,
	}
	if record.DealerID != nil {
		fields["dealer_id"] = record.DealerID.String()
	}
	if record.From != "" || record.To != "" {
		fields["from"] = record.From
		fields["to"] = record.To
	}
	for k, v := range record.Metadata {
		fields["meta_"+k] = v
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "audit")
	return nil
}

type publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

// PubSubSink publishes records as JSON to the audit topic.
type PubSubSink struct {
	pub publisher
}

// NewPubSubSink wraps the audit topic publisher.
func NewPubSubSink(p *gcppubsub.Publisher) (*PubSubSink, error) {
	if p == nil {
		return nil, errors.New("audit publisher required")
	}
	return &PubSubSink{pub: gcpPublisher{p}}, nil
}

func (s *PubSubSink) Write(ctx context.Context, record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	msg := &gcppubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"action":      record.Action,
			"entity_type": record.EntityType,
			"entity_id":   record.EntityID.String(),
		},
	}
	_, err = s.pub.Publish(ctx, msg).Get(ctx)
	return err
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}
