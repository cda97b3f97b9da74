package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ops-tools/remedia/pkg/models/domain"
	"github.com/ops-tools/remedia/pkg/services/archive"
	"github.com/ops-tools/remedia/pkg/services/broker"
	"github.com/ops-tools/remedia/pkg/store/tickets"
)

// Normalizer parses a raw payload into a canonical finding.
type Normalizer interface {
	Normalize(raw json.RawMessage) (domain.Finding, error)
}

// CredentialBroker resolves per-account credentials for dispatch.
type CredentialBroker interface {
	Lease(ctx context.Context, accountID string) (domain.CredentialLease, error)
	Config(lease domain.CredentialLease) aws.Config
}

// Dispatcher maps a finding to at most one remediation handler.
type Dispatcher interface {
	Dispatch(ctx context.Context, finding domain.Finding, cfg aws.Config) domain.RemediationResult
}

// Recorder is the ticket store chain.
type Recorder interface {
	Record(ctx context.Context, finding domain.Finding, result domain.RemediationResult) (domain.Ticket, error)
}

// Notifier emits the per-finding event and batch metrics.
type Notifier interface {
	Notify(ctx context.Context, event domain.Event)
	RecordBatch(ctx context.Context, remediated, failed int)
}

// Archiver closes successfully remediated findings at their source.
type Archiver interface {
	Archive(ctx context.Context, finding domain.Finding)
}

type Settings struct {
	// Workers bounds how many findings are processed concurrently.
	Workers int
}

// BatchSummary reports what happened to one invocation batch.
type BatchSummary struct {
	Total      int      `json:"total_findings"`
	Remediated []string `json:"remediated_findings"`
	Failed     []string `json:"failed_remediations"`
	Skipped    []string `json:"skipped_findings"`
	Tickets    []string `json:"created_tickets"`
	Malformed  int      `json:"malformed_payloads"`
	// Errored counts findings that normalized fine but could not be
	// recorded, distinct from malformed payloads.
	Errored int `json:"recording_errors"`
}

// Orchestrator drives each finding through
// RECEIVED -> NORMALIZED -> DISPATCHED|DISPATCH_SKIPPED -> TICKETED -> NOTIFIED.
// Findings fail independently; only a fatal ticket store error aborts the
// batch.
type Orchestrator struct {
	normalizer Normalizer
	broker     CredentialBroker
	dispatcher Dispatcher
	recorder   Recorder
	notifier   Notifier
	archiver   Archiver
	settings   Settings

	keyed *keyedMutex
}

func New(
	normalizer Normalizer,
	credBroker CredentialBroker,
	dispatcher Dispatcher,
	recorder Recorder,
	notifier Notifier,
	archiver Archiver,
	settings Settings,
) *Orchestrator {
	if settings.Workers <= 0 {
		settings.Workers = 4
	}
	return &Orchestrator{
		normalizer: normalizer,
		broker:     credBroker,
		dispatcher: dispatcher,
		recorder:   recorder,
		notifier:   notifier,
		archiver:   archiver,
		settings:   settings,
		keyed:      newKeyedMutex(),
	}
}

// ProcessBatch runs every finding in the batch through the pipeline with a
// bounded worker pool. The returned error is non-nil only for a fatal
// configuration failure, which cancels the remaining findings.
func (o *Orchestrator) ProcessBatch(ctx context.Context, payloads []json.RawMessage) (BatchSummary, error) {
	summary := BatchSummary{Total: len(payloads)}
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.settings.Workers)

	for _, payload := range payloads {
		group.Go(func() error {
			outcome, ticket, ok := o.processOne(groupCtx, payload)

			mu.Lock()
			defer mu.Unlock()
			if ok.fatal {
				return ok.err
			}
			if ok.malformed {
				summary.Malformed++
				return nil
			}
			if ok.err != nil {
				summary.Errored++
				return nil
			}
			switch outcome {
			case domain.OutcomeSucceeded:
				summary.Remediated = append(summary.Remediated, ticket.FindingID)
			case domain.OutcomeFailed:
				summary.Failed = append(summary.Failed, ticket.FindingID)
			default:
				summary.Skipped = append(summary.Skipped, ticket.FindingID)
			}
			summary.Tickets = append(summary.Tickets, ticket.TicketID)
			return nil
		})
	}

	err := group.Wait()
	o.notifier.RecordBatch(ctx, len(summary.Remediated), len(summary.Failed))
	return summary, err
}

type findingStatus struct {
	malformed bool
	fatal     bool
	err       error
}

func (o *Orchestrator) processOne(
	ctx context.Context,
	payload json.RawMessage,
) (domain.Outcome, domain.Ticket, findingStatus) {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Msg("finding received")

	finding, err := o.normalizer.Normalize(payload)
	if err != nil {
		// Terminal for this finding only; siblings keep going.
		logger.Error().Err(err).Msg("failed to normalize finding")
		return "", domain.Ticket{}, findingStatus{malformed: true, err: err}
	}

	findingLogger := logger.With().
		Str("finding_id", finding.ID).
		Str("account_id", finding.AccountID).
		Str("service", string(finding.Service)).
		Logger()
	ctx = findingLogger.WithContext(ctx)
	findingLogger.Info().Str("severity", finding.Severity.String()).Msg("finding normalized")

	key := finding.Key()
	o.keyed.Lock(key)
	defer o.keyed.Unlock(key)

	result := o.dispatch(ctx, finding)
	ticket, err := o.recorder.Record(ctx, finding, result)
	if err != nil {
		var fatal *tickets.FatalConfigurationError
		if errors.As(err, &fatal) {
			findingLogger.Error().Err(err).Msg("ticket store chain exhausted, aborting batch")
			return result.Outcome, domain.Ticket{}, findingStatus{fatal: true, err: err}
		}
		findingLogger.Error().Err(err).Msg("failed to record ticket")
		return result.Outcome, domain.Ticket{}, findingStatus{err: err}
	}
	findingLogger.Info().
		Str("ticket_id", ticket.TicketID).
		Str("backend", ticket.Backend).
		Str("status", string(ticket.Status)).
		Msg("finding ticketed")

	o.notifier.Notify(ctx, domain.Event{
		FindingID:          finding.ID,
		AccountID:          finding.AccountID,
		Severity:           finding.Severity.String(),
		RemediationOutcome: result.Outcome,
		TicketID:           ticket.TicketID,
		TicketBackend:      ticket.Backend,
		Timestamp:          time.Now().UTC(),
	})
	findingLogger.Info().Msg("finding notified")

	// A remediated finding is closed at the source so it leaves the active
	// queue. Best effort, like notification.
	if result.Outcome == domain.OutcomeSucceeded {
		o.archiver.Archive(ctx, finding)
	}

	return result.Outcome, ticket, findingStatus{}
}

// dispatch resolves credentials and invokes the remediation dispatcher.
// Remediation is best effort: an authorization failure or handler error
// never blocks the ticketing path.
func (o *Orchestrator) dispatch(ctx context.Context, finding domain.Finding) domain.RemediationResult {
	logger := zerolog.Ctx(ctx)

	lease, err := o.broker.Lease(ctx, finding.AccountID)
	if err != nil {
		logger.Warn().Err(err).Msg("credential lease denied, skipping remediation")
		return domain.RemediationResult{
			FindingID: finding.ID,
			Handler:   finding.Service,
			Outcome:   domain.OutcomeSkipped,
			Detail:    "credential lease denied: " + err.Error(),
			Timestamp: time.Now().UTC(),
		}
	}

	result := o.dispatcher.Dispatch(ctx, finding, o.broker.Config(lease))
	switch result.Outcome {
	case domain.OutcomeNotApplicable, domain.OutcomeSkipped:
		logger.Info().Str("outcome", string(result.Outcome)).Msg("dispatch skipped")
	default:
		logger.Info().
			Str("outcome", string(result.Outcome)).
			Str("detail", result.Detail).
			Msg("finding dispatched")
	}
	return result
}

// Ensure the concrete services satisfy the interfaces the orchestrator needs.
var (
	_ CredentialBroker = (*broker.Broker)(nil)
	_ Archiver         = (*archive.Archiver)(nil)
)
