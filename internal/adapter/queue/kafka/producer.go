package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
	"github.com/fairyhunter13/ai-mock-interview/internal/observability"
)

// Producer wraps a Kafka producer and implements domain.Queue.
type Producer struct {
	client *kgo.Client
}

// NewProducer constructs a Producer and ensures the generate topic exists.
func NewProducer(brokers []string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	slog.Info("creating kafka producer", slog.Any("brokers", brokers))

	tracer := kotel.NewTracer()
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.RequestRetries(10),
		kgo.WithHooks(kotel.NewKotel(kotel.WithTracer(tracer)).Hooks()...),
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	if err := createTopicIfNotExists(context.Background(), client, TopicGenerate, 1, 1); err != nil {
		// The topic may be created by the broker or another process.
		slog.Warn("failed to create topic, it may already exist",
			slog.String("topic", TopicGenerate), slog.Any("error", err))
	}
	return &Producer{client: client}, nil
}

// EnqueueGenerate publishes a generation task keyed by job id.
func (p *Producer) EnqueueGenerate(ctx domain.Context, payload domain.GenerateTaskPayload) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	record := &kgo.Record{
		Topic: TopicGenerate,
		Key:   []byte(payload.JobID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "job_id", Value: []byte(payload.JobID)},
			{Key: "owner_id", Value: []byte(payload.OwnerID)},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return "", fmt.Errorf("produce: %w", err)
	}
	observability.JobsEnqueuedTotal.WithLabelValues("generate").Inc()
	slog.Info("generation task enqueued",
		slog.String("topic", TopicGenerate),
		slog.String("job_id", payload.JobID))
	return payload.JobID, nil
}

// Ping verifies broker connectivity for readiness probes.
func (p *Producer) Ping(ctx domain.Context) error {
	return p.client.Ping(ctx)
}

// Close closes the producer.
func (p *Producer) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}
