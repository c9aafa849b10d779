package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/adiga-code/numerology/internal/config"
	"github.com/adiga-code/numerology/internal/metrics"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// WorkflowProvider starts generation in an automation workflow and waits
// for the result on the callback webhook.
type WorkflowProvider struct {
	client      *resty.Client
	webhookURL  string
	secretToken string
	logger      *zerolog.Logger
}

type workflowPayload struct {
	Request
	SecretToken string `json:"secret_token"`
}

type workflowResponse struct {
	ExecutionID string `json:"execution_id"`
	Message     string `json:"message"`
}

func NewWorkflowProvider(cfg config.WorkflowConfig, secretToken string, logger *zerolog.Logger) *WorkflowProvider {
	return &WorkflowProvider{
		client:      resty.New().SetTimeout(cfg.Timeout),
		webhookURL:  cfg.WebhookURL,
		secretToken: secretToken,
		logger:      logger,
	}
}

func (p *WorkflowProvider) Name() string { return config.ProviderWorkflow }

func (p *WorkflowProvider) Submit(ctx context.Context, req Request) (Submission, error) {
	start := time.Now()
	var out workflowResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(workflowPayload{Request: req, SecretToken: p.secretToken}).
		SetResult(&out).
		Post(p.webhookURL)
	if err != nil {
		metrics.ObserveSubmission(p.Name(), "error", elapsed(start))
		return Submission{}, fmt.Errorf("workflow request: %w", err)
	}
	if resp.IsError() {
		metrics.ObserveSubmission(p.Name(), "error", elapsed(start))
		return Submission{}, fmt.Errorf("workflow returned HTTP %d", resp.StatusCode())
	}
	metrics.ObserveSubmission(p.Name(), "accepted", elapsed(start))

	ref := out.ExecutionID
	if ref == "" {
		ref = req.ExternalID
	}
	p.logger.Info().
		Int64("order_id", req.OrderID).
		Str("task_ref", ref).
		Str("message", out.Message).
		Msg("Workflow accepted generation request")

	return Submission{Provider: p.Name(), TaskRef: ref, Async: true}, nil
}
