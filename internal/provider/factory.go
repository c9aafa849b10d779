package provider

import (
	"fmt"

	"github.com/adiga-code/numerology/internal/config"

	"github.com/rs/zerolog"
)

// FromConfig builds the configured providers in order. It returns a nil
// provider when none is configured. closeFn releases producer connections.
func FromConfig(cfg config.GenerationConfig, logger *zerolog.Logger) (ReportProvider, func() error, error) {
	var (
		providers []ReportProvider
		closers   []func() error
	)
	closeAll := func() error {
		var first error
		for _, c := range closers {
			if err := c(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	for _, name := range cfg.Providers {
		switch name {
		case config.ProviderWorkflow:
			providers = append(providers, NewWorkflowProvider(cfg.Workflow, cfg.SecretToken, logger))
		case config.ProviderLLM:
			providers = append(providers, NewLLMProvider(cfg.LLM, logger))
		case config.ProviderKafka:
			kp, err := NewKafkaProvider(cfg.Kafka, cfg.SecretToken, logger)
			if err != nil {
				_ = closeAll()
				return nil, nil, err
			}
			providers = append(providers, kp)
			closers = append(closers, kp.Close)
		default:
			_ = closeAll()
			return nil, nil, fmt.Errorf("unknown generation provider %q", name)
		}
	}

	switch len(providers) {
	case 0:
		return nil, closeAll, nil
	case 1:
		return providers[0], closeAll, nil
	default:
		return NewFallback(logger, providers...), closeAll, nil
	}
}
