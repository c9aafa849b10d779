package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
)

// Fallback tries providers in order; the first success wins.
type Fallback struct {
	providers []ReportProvider
	logger    *zerolog.Logger
}

// Failure is one provider that did not accept a request.
type Failure struct {
	Provider string
	Err      error
}

// FallbackError is returned when every provider failed.
type FallbackError struct {
	Failures []Failure
}

func (e *FallbackError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Provider + ": " + f.Err.Error()
	}
	return strings.Join(parts, "\n")
}

func (e *FallbackError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// Failures lists the providers that failed during a Submit call, taken
// either from the successful submission or from the returned error.
func Failures(sub Submission, err error) []Failure {
	var fe *FallbackError
	if errors.As(err, &fe) {
		return fe.Failures
	}
	return sub.Failed
}

func NewFallback(logger *zerolog.Logger, providers ...ReportProvider) *Fallback {
	return &Fallback{providers: providers, logger: logger}
}

func (f *Fallback) Name() string {
	names := make([]string, len(f.providers))
	for i, p := range f.providers {
		names[i] = p.Name()
	}
	return "fallback(" + strings.Join(names, ",") + ")"
}

func (f *Fallback) Submit(ctx context.Context, req Request) (Submission, error) {
	var failed []Failure
	for _, p := range f.providers {
		sub, err := p.Submit(ctx, req)
		if err == nil {
			sub.Failed = failed
			return sub, nil
		}
		failed = append(failed, Failure{Provider: p.Name(), Err: err})
		f.logger.Warn().Err(err).
			Str("provider", p.Name()).
			Int64("order_id", req.OrderID).
			Msg("Provider failed, trying next")
		if ctx.Err() != nil {
			break
		}
	}
	if len(failed) == 0 {
		return Submission{}, errors.New("no providers")
	}
	return Submission{}, &FallbackError{Failures: failed}
}
