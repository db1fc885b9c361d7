package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
	"github.com/fairyhunter13/ai-mock-interview/internal/questionbank"
)

// Consumer polls generation tasks and processes them sequentially. Offsets
// commit only after a record is handled, so a crashed worker replays the
// in-flight job instead of losing it.
type Consumer struct {
	client     *kgo.Client
	jobs       domain.GenerationJobRepository
	interviews domain.InterviewRepository
	gen        domain.QuestionGenerator
	bank       *questionbank.Bank
}

// NewConsumer constructs a Consumer in the given consumer group.
func NewConsumer(brokers []string, groupID string, jobs domain.GenerationJobRepository, interviews domain.InterviewRepository, gen domain.QuestionGenerator, bank *questionbank.Bank) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	if groupID == "" {
		return nil, fmt.Errorf("missing required group ID")
	}
	slog.Info("creating kafka consumer",
		slog.Any("brokers", brokers), slog.String("group_id", groupID))

	tracer := kotel.NewTracer()
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(TopicGenerate),
		kgo.DisableAutoCommit(),
		kgo.WithHooks(kotel.NewKotel(kotel.WithTracer(tracer)).Hooks()...),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	if err := createTopicIfNotExists(context.Background(), client, TopicGenerate, 1, 1); err != nil {
		slog.Warn("failed to create topic, it may already exist",
			slog.String("topic", TopicGenerate), slog.Any("error", err))
	}
	return &Consumer{client: client, jobs: jobs, interviews: interviews, gen: gen, bank: bank}, nil
}

// Run polls and handles records until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return ctx.Err()
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			slog.Error("fetch error",
				slog.String("topic", topic),
				slog.Int("partition", int(partition)),
				slog.Any("error", err))
		})
		fetches.EachRecord(func(rec *kgo.Record) {
			c.processRecord(ctx, rec)
		})
		if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
			slog.Error("commit offsets failed", slog.Any("error", err))
		}
	}
}

func (c *Consumer) processRecord(ctx context.Context, rec *kgo.Record) {
	var payload domain.GenerateTaskPayload
	if err := json.Unmarshal(rec.Value, &payload); err != nil {
		// Poison message; log and move on so the partition is not wedged.
		slog.Error("unmarshal task payload failed",
			slog.String("topic", rec.Topic),
			slog.Int64("offset", rec.Offset),
			slog.Any("error", err))
		return
	}
	if err := HandleGenerate(ctx, c.jobs, c.interviews, c.gen, c.bank, payload); err != nil {
		slog.Error("generation task failed",
			slog.String("job_id", payload.JobID),
			slog.Any("error", err))
	}
}

// Close closes the consumer.
func (c *Consumer) Close() error {
	if c.client != nil {
		c.client.Close()
	}
	return nil
}
