// Package app wires the orchestrator stack from configuration. Both the web
// server and the CLI build the same pipeline.
package app

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/ops-tools/remedia/pkg/services/archive"
	"github.com/ops-tools/remedia/pkg/services/broker"
	"github.com/ops-tools/remedia/pkg/services/config"
	"github.com/ops-tools/remedia/pkg/services/dispatch"
	"github.com/ops-tools/remedia/pkg/services/dispatch/handlers"
	"github.com/ops-tools/remedia/pkg/services/normalizer"
	"github.com/ops-tools/remedia/pkg/services/notify"
	"github.com/ops-tools/remedia/pkg/services/orchestrator"
	"github.com/ops-tools/remedia/pkg/store/duckdb"
	duckdbtickets "github.com/ops-tools/remedia/pkg/store/duckdb/tickets"
	"github.com/ops-tools/remedia/pkg/store/tickets"
)

func BuildOrchestrator(ctx context.Context, cfg *config.Config) (*orchestrator.Orchestrator, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithDefaultRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	credBroker, err := broker.New(awsCfg, broker.Settings{
		HomeAccountID: cfg.HomeAccountID,
		RoleName:      cfg.RoleName,
		ExternalID:    cfg.ExternalID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create credential broker: %w", err)
	}

	dispatcher, err := dispatch.NewDispatcher(
		dispatch.Settings{CallTimeout: cfg.DispatchTimeout},
		handlers.NewIAMHandler(),
		handlers.NewS3Handler(),
		handlers.NewEC2Handler(),
		handlers.NewRDSHandler(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	db, err := duckdb.NewDB(duckdb.Settings{DbPath: cfg.DBPath})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB instance: %w", err)
	}
	ticketStore, err := duckdbtickets.NewStore(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticket store: %w", err)
	}

	backends, err := configureBackends(cfg, ticketStore)
	if err != nil {
		return nil, err
	}
	chain, err := tickets.NewChain(ticketStore, tickets.ChainSettings{
		AttemptTimeout: cfg.BackendTimeout,
	}, backends...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticket chain: %w", err)
	}

	notifier := notify.New(awsCfg, notify.Settings{TopicARN: cfg.TopicARN})

	return orchestrator.New(
		normalizer.New(),
		credBroker,
		dispatcher,
		chain,
		notifier,
		archive.New(awsCfg),
		orchestrator.Settings{Workers: cfg.Workers},
	), nil
}

// configureBackends builds the chain in configured priority order. The
// durable local store always terminates the chain.
func configureBackends(cfg *config.Config, ticketStore duckdbtickets.Store) ([]tickets.Backend, error) {
	var backends []tickets.Backend
	for _, kind := range cfg.Backends {
		switch kind {
		case "github":
			b, err := tickets.NewGitHubBackend(tickets.GitHubSettings{
				APIBaseURL: cfg.GitHub.APIBaseURL,
				Repo:       cfg.GitHub.Repo,
				Token:      cfg.GitHub.Token,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to configure github backend: %w", err)
			}
			backends = append(backends, b)
		case "jira":
			b, err := tickets.NewJiraBackend(tickets.JiraSettings{
				URL:        cfg.Jira.URL,
				Username:   cfg.Jira.Username,
				APIToken:   cfg.Jira.APIToken,
				ProjectKey: cfg.Jira.ProjectKey,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to configure jira backend: %w", err)
			}
			backends = append(backends, b)
		case "local":
			// Appended below regardless.
		default:
			return nil, fmt.Errorf("unknown ticket backend %q", kind)
		}
	}
	backends = append(backends, tickets.NewLocalBackend(ticketStore))
	return backends, nil
}
