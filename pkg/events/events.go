package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"smallbiznis-rewards/pkg/config"

	kgo "github.com/segmentio/kafka-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	RewardCredited           = "reward.credited"
	TransactionStatusChanged = "transaction.status_changed"
	ReferralRewarded         = "referral.rewarded"
	SystemEvent              = "system.event"
)

var Module = fx.Module("events",
	fx.Provide(NewPublisher),
)

type Event struct {
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	Payload    any       `json:"payload"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher emits domain events after commit. Callers treat failures as fail-soft.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// NewPublisher returns a kafka writer when KAFKA.ADDR is set, otherwise a logging publisher.
func NewPublisher(lc fx.Lifecycle, cfg *config.Config) Publisher {
	if strings.TrimSpace(cfg.Kafka.Addr) == "" || cfg.Kafka.Topic == "" {
		zap.L().Info("[Events] kafka not configured, events are logged only")
		return LogPublisher{}
	}

	p := NewKafkaPublisher(cfg.Kafka.Addr, cfg.Kafka.Topic)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return p.Close()
		},
	})
	zap.L().Info("[Events] kafka publisher ready", zap.String("topic", cfg.Kafka.Topic))
	return p
}

type KafkaPublisher struct {
	writer  *kgo.Writer
	timeout time.Duration
}

func NewKafkaPublisher(brokersCSV, topic string) *KafkaPublisher {
	w := &kgo.Writer{
		Addr:         kgo.TCP(splitCSV(brokersCSV)...),
		Topic:        topic,
		Balancer:     &kgo.LeastBytes{},
		RequiredAcks: kgo.RequireOne,
	}

	return &KafkaPublisher{
		writer:  w,
		timeout: 3 * time.Second,
	}
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return p.writer.WriteMessages(cctx, kgo.Message{
		Key:   []byte(evt.Key),
		Value: b,
		Time:  evt.OccurredAt,
		Headers: []kgo.Header{
			{Key: "type", Value: []byte(evt.Type)},
		},
	})
}

type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, evt Event) error {
	zap.L().Info("event", zap.String("type", evt.Type), zap.String("key", evt.Key), zap.Any("payload", evt.Payload))
	return nil
}

// PublishSafe publishes and logs any error instead of returning it.
func PublishSafe(ctx context.Context, p Publisher, evt Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, evt); err != nil {
		zap.L().Warn("failed to publish event", zap.String("type", evt.Type), zap.String("key", evt.Key), zap.Error(err))
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
