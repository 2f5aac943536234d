// Package kafka streams audit entries to a Kafka topic with franz-go.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"cnpjota/internal/audit/models"
)

const (
	DefaultTopic      = "cnpjota.queries"
	defaultPartitions = 3
	// -1 lets the broker apply its default replication factor.
	defaultReplication = -1
)

// Sink produces one record per entry keyed by subject id, so a subject's
// entries keep their order within a partition.
type Sink struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

type Option func(*config)

type config struct {
	topic      string
	clientID   string
	partitions int32
	logger     *slog.Logger
	extra      []kgo.Opt
}

func WithTopic(topic string) Option {
	return func(c *config) {
		if topic != "" {
			c.topic = topic
		}
	}
}

func WithClientID(clientID string) Option {
	return func(c *config) {
		if clientID != "" {
			c.clientID = clientID
		}
	}
}

func WithPartitions(n int32) Option {
	return func(c *config) {
		if n > 0 {
			c.partitions = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClientOpts passes raw franz-go options through, e.g. SASL or TLS.
func WithClientOpts(opts ...kgo.Opt) Option {
	return func(c *config) {
		c.extra = append(c.extra, opts...)
	}
}

// New connects to brokers and makes sure the topic exists.
func New(ctx context.Context, brokers []string, opts ...Option) (*Sink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	cfg := config{
		topic:      DefaultTopic,
		clientID:   "cnpjota",
		partitions: defaultPartitions,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	kopts := append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(cfg.clientID),
		kgo.DefaultProduceTopic(cfg.topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}, cfg.extra...)
	client, err := kgo.NewClient(kopts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping kafka: %w", err)
	}
	if err := ensureTopic(ctx, kadm.NewClient(client), cfg.topic, cfg.partitions); err != nil {
		client.Close()
		return nil, err
	}

	cfg.logger.InfoContext(ctx, "audit stream connected",
		"brokers", brokers,
		"topic", cfg.topic,
	)
	return &Sink{client: client, topic: cfg.topic, logger: cfg.logger}, nil
}

func ensureTopic(ctx context.Context, admin *kadm.Client, topic string, partitions int32) error {
	resp, err := admin.CreateTopic(ctx, partitions, defaultReplication, nil, topic)
	if err == nil {
		err = resp.Err
	}
	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	return nil
}

func (s *Sink) Topic() string {
	return s.topic
}

// Publish produces the batch synchronously and returns the first failure.
func (s *Sink) Publish(ctx context.Context, entries []*models.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	records := make([]*kgo.Record, 0, len(entries))
	for _, e := range entries {
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode audit entry: %w", err)
		}
		records = append(records, &kgo.Record{
			Key:   []byte(e.SubjectID.String()),
			Value: value,
			Headers: []kgo.RecordHeader{
				{Key: "request_id", Value: []byte(e.RequestID)},
			},
		})
	}
	if err := s.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce audit entries: %w", err)
	}
	return nil
}

func (s *Sink) Close() {
	s.client.Close()
}
