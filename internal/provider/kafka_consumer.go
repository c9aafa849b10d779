package provider

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/adiga-code/numerology/internal/config"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

// tokenHeader carries the shared generation secret in both directions.
const tokenHeader = "token"

// ErrInvalidToken is returned for results without the shared secret.
var ErrInvalidToken = errors.New("invalid result token")

// ResultHandler applies an asynchronous generation result.
type ResultHandler func(ctx context.Context, result Result) error

// ResultConsumer reads generation results from the result topic.
type ResultConsumer struct {
	group       sarama.ConsumerGroup
	topic       string
	secretToken string
	handler     ResultHandler
	logger      *zerolog.Logger
}

// NewResultConsumer creates the consumer. Messages whose token header does
// not match secretToken never reach handler.
func NewResultConsumer(
	cfg config.KafkaConfig, secretToken string, handler ResultHandler, logger *zerolog.Logger,
) (*ResultConsumer, error) {
	if cfg.ResultTopic == "" {
		return nil, errors.New("kafka result topic is required")
	}
	sc := newSaramaConfig(cfg)
	sc.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest

	group, err := sarama.NewConsumerGroup(cfg.GetBrokers(), cfg.ConsumerGroup, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	logger.Info().Str("topic", cfg.ResultTopic).Str("group", cfg.ConsumerGroup).Msg("Kafka result consumer created")

	return &ResultConsumer{
		group:       group,
		topic:       cfg.ResultTopic,
		secretToken: secretToken,
		handler:     handler,
		logger:      logger,
	}, nil
}

// Start consumes until ctx is cancelled.
func (c *ResultConsumer) Start(ctx context.Context) error {
	handler := &resultGroupHandler{secretToken: c.secretToken, handler: c.handler, logger: c.logger}
	for {
		if err := c.group.Consume(ctx, []string{c.topic}, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return fmt.Errorf("consumer error: %w", err)
		}
		if ctx.Err() != nil {
			c.logger.Info().Str("topic", c.topic).Msg("Kafka result consumer stopping")
			return nil
		}
	}
}

func (c *ResultConsumer) Close() error {
	if err := c.group.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	return nil
}

type resultGroupHandler struct {
	secretToken string
	handler     ResultHandler
	logger      *zerolog.Logger
}

func (h *resultGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *resultGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *resultGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.handle(session.Context(), message)
			// результат не переигрывается: повтор даст no-op на терминальном заказе
			session.MarkMessage(message, "")
		}
	}
}

func (h *resultGroupHandler) handle(ctx context.Context, message *sarama.ConsumerMessage) {
	result, err := decodeResult(message, h.secretToken)
	if errors.Is(err, ErrInvalidToken) {
		h.logger.Warn().
			Int32("partition", message.Partition).
			Int64("offset", message.Offset).
			Msg("Generation result rejected, invalid token")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).
			Int32("partition", message.Partition).
			Int64("offset", message.Offset).
			Msg("Failed to decode generation result")
		return
	}
	if err := h.handler(ctx, result); err != nil {
		h.logger.Warn().Err(err).
			Int64("order_id", result.OrderID).
			Int64("offset", message.Offset).
			Msg("Generation result not applied")
	}
}

func decodeResult(message *sarama.ConsumerMessage, secretToken string) (Result, error) {
	if !validToken(message, secretToken) {
		return Result{}, ErrInvalidToken
	}
	var result Result
	if err := json.Unmarshal(message.Value, &result); err != nil {
		return Result{}, fmt.Errorf("decode result: %w", err)
	}
	if result.OrderID == 0 {
		for _, h := range message.Headers {
			if h != nil && string(h.Key) == "order_id" {
				id, err := strconv.ParseInt(string(h.Value), 10, 64)
				if err != nil {
					return Result{}, fmt.Errorf("bad order_id header: %w", err)
				}
				result.OrderID = id
			}
		}
	}
	if result.OrderID == 0 {
		return Result{}, errors.New("result without order_id")
	}
	return result, nil
}

func validToken(message *sarama.ConsumerMessage, secretToken string) bool {
	if secretToken == "" {
		return false
	}
	for _, h := range message.Headers {
		if h != nil && string(h.Key) == tokenHeader {
			return subtle.ConstantTimeCompare(h.Value, []byte(secretToken)) == 1
		}
	}
	return false
}
