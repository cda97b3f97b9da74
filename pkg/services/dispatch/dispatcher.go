package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/rs/zerolog"

	"github.com/ops-tools/remedia/pkg/models/domain"
)

// Handler attempts to fix the condition described by one finding, using the
// supplied per-account credentials. Handlers hold no mutable state between
// invocations, so a retry is always safe.
type Handler interface {
	ServiceClass() domain.ServiceClass
	Remediate(ctx context.Context, finding domain.Finding, cfg aws.Config) (string, error)
}

type Settings struct {
	// CallTimeout bounds a single handler invocation.
	CallTimeout time.Duration
	// RetryBackoff is the fixed pause before the single transient retry.
	RetryBackoff time.Duration
}

type Dispatcher struct {
	handlers map[domain.ServiceClass]Handler
	settings Settings

	sleep func(context.Context, time.Duration)
}

func NewDispatcher(settings Settings, handlers ...Handler) (*Dispatcher, error) {
	if settings.CallTimeout <= 0 {
		settings.CallTimeout = 30 * time.Second
	}
	if settings.RetryBackoff <= 0 {
		settings.RetryBackoff = 2 * time.Second
	}

	d := &Dispatcher{
		handlers: make(map[domain.ServiceClass]Handler),
		settings: settings,
		sleep:    sleepCtx,
	}
	for _, h := range handlers {
		class := h.ServiceClass()
		if _, exists := d.handlers[class]; exists {
			return nil, fmt.Errorf("duplicate handler for service class: %s", class)
		}
		d.handlers[class] = h
	}
	return d, nil
}

// SupportedServices lists the service classes with a registered handler.
func (d *Dispatcher) SupportedServices() []domain.ServiceClass {
	classes := make([]domain.ServiceClass, 0, len(d.handlers))
	for class := range d.handlers {
		classes = append(classes, class)
	}
	return classes
}

// Dispatch maps the finding to at most one handler and invokes it. A lookup
// miss is NOT_APPLICABLE and a LOW severity finding is SKIPPED; neither is a
// fault. Handler errors classified as transient get exactly one retry.
func (d *Dispatcher) Dispatch(ctx context.Context, finding domain.Finding, cfg aws.Config) domain.RemediationResult {
	result := domain.RemediationResult{
		FindingID: finding.ID,
		Handler:   finding.Service,
		Timestamp: time.Now().UTC(),
	}

	handler, ok := d.handlers[finding.Service]
	if !ok {
		result.Outcome = domain.OutcomeNotApplicable
		result.Detail = fmt.Sprintf("no remediation handler for service %q", finding.Service)
		return result
	}

	if finding.Severity < domain.SeverityMedium {
		result.Outcome = domain.OutcomeSkipped
		result.Detail = "severity below remediation threshold"
		return result
	}

	detail, err := d.invoke(ctx, handler, finding, cfg)
	if err != nil && transient(err) {
		zerolog.Ctx(ctx).Warn().
			Str("finding_id", finding.ID).
			Err(err).
			Msg("transient remediation failure, retrying once")
		d.sleep(ctx, d.settings.RetryBackoff)
		if ctx.Err() == nil {
			detail, err = d.invoke(ctx, handler, finding, cfg)
		}
	}

	result.Timestamp = time.Now().UTC()
	if err != nil {
		result.Outcome = domain.OutcomeFailed
		result.Detail = err.Error()
		return result
	}

	result.Outcome = domain.OutcomeSucceeded
	result.Detail = detail
	return result
}

func (d *Dispatcher) invoke(
	ctx context.Context,
	handler Handler,
	finding domain.Finding,
	cfg aws.Config,
) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.settings.CallTimeout)
	defer cancel()
	return handler.Remediate(callCtx, finding, cfg)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
