package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/adiga-code/numerology/internal/config"
	"github.com/adiga-code/numerology/internal/metrics"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

// KafkaProvider publishes generation requests to a topic. Results come back
// on the result topic and are read by ResultConsumer.
type KafkaProvider struct {
	producer    sarama.SyncProducer
	topic       string
	resultTopic string
	secretToken string
	logger      *zerolog.Logger
}

// newSaramaConfig настраивает общие параметры клиента и безопасность
func newSaramaConfig(cfg config.KafkaConfig) *sarama.Config {
	sc := sarama.NewConfig()
	if cfg.SecurityProtocol == "SASL_SSL" || cfg.SecurityProtocol == "SASL_PLAINTEXT" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		if cfg.SASLMechanism == "SCRAM-SHA-256" {
			sc.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
		}
		sc.Net.SASL.User = cfg.SASLUsername
		sc.Net.SASL.Password = cfg.SASLPassword
		// TLS только для SASL_SSL
		if cfg.SecurityProtocol == "SASL_SSL" {
			sc.Net.TLS.Enable = true
		}
	}
	return sc
}

func NewKafkaProvider(cfg config.KafkaConfig, secretToken string, logger *zerolog.Logger) (*KafkaProvider, error) {
	sc := newSaramaConfig(cfg)
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(cfg.GetBrokers(), sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	logger.Info().Strs("brokers", cfg.GetBrokers()).Str("topic", cfg.RequestTopic).Msg("Kafka producer created")

	return NewKafkaProviderWithProducer(producer, cfg, secretToken, logger), nil
}

func NewKafkaProviderWithProducer(
	producer sarama.SyncProducer, cfg config.KafkaConfig, secretToken string, logger *zerolog.Logger,
) *KafkaProvider {
	return &KafkaProvider{
		producer:    producer,
		topic:       cfg.RequestTopic,
		resultTopic: cfg.ResultTopic,
		secretToken: secretToken,
		logger:      logger,
	}
}

func (p *KafkaProvider) Name() string { return config.ProviderKafka }

func (p *KafkaProvider) Submit(ctx context.Context, req Request) (Submission, error) {
	if err := ctx.Err(); err != nil {
		return Submission{}, err
	}
	start := time.Now()

	value, err := json.Marshal(req)
	if err != nil {
		return Submission{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(req.ExternalID),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("order_id"), Value: []byte(strconv.FormatInt(req.OrderID, 10))},
			{Key: []byte("callback"), Value: []byte(p.resultTopic)},
			{Key: []byte(tokenHeader), Value: []byte(p.secretToken)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		metrics.ObserveSubmission(p.Name(), "error", elapsed(start))
		return Submission{}, fmt.Errorf("kafka send failed [topic=%s, key=%s]: %w", p.topic, req.ExternalID, err)
	}
	metrics.ObserveSubmission(p.Name(), "accepted", elapsed(start))

	ref := fmt.Sprintf("%d:%d", partition, offset)
	p.logger.Debug().
		Str("topic", p.topic).
		Int32("partition", partition).
		Int64("offset", offset).
		Int64("order_id", req.OrderID).
		Msg("Generation request sent to kafka")

	return Submission{Provider: p.Name(), TaskRef: ref, Async: true}, nil
}

// Close закрывает producer
func (p *KafkaProvider) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}
