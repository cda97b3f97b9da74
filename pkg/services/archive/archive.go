// Package archive closes the loop with the finding source: findings whose
// remediation succeeded are annotated and archived in Security Hub so they
// drop out of the active queue.
package archive

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/securityhub"
	shtypes "github.com/aws/aws-sdk-go-v2/service/securityhub/types"
	"github.com/rs/zerolog"

	"github.com/ops-tools/remedia/pkg/models/domain"
)

const (
	noteText   = "Auto-remediated by the remediation orchestrator"
	noteAuthor = "remedia"
)

type UpdateFindingsAPI interface {
	UpdateFindings(ctx context.Context, params *securityhub.UpdateFindingsInput, optFns ...func(*securityhub.Options)) (*securityhub.UpdateFindingsOutput, error)
}

// Archiver archives remediated findings at the source. Archival is best
// effort: the remediation and its ticket already happened, so a failure here
// is logged and never propagated.
type Archiver struct {
	client UpdateFindingsAPI
}

func New(cfg aws.Config) *Archiver {
	return &Archiver{client: securityhub.NewFromConfig(cfg)}
}

func (a *Archiver) Archive(ctx context.Context, finding domain.Finding) {
	logger := zerolog.Ctx(ctx)

	_, err := a.client.UpdateFindings(ctx, &securityhub.UpdateFindingsInput{
		Filters: &shtypes.AwsSecurityFindingFilters{
			Id: []shtypes.StringFilter{{
				Value:      aws.String(finding.ID),
				Comparison: shtypes.StringFilterComparisonEquals,
			}},
		},
		Note: &shtypes.NoteUpdate{
			Text:      aws.String(noteText),
			UpdatedBy: aws.String(noteAuthor),
		},
		RecordState: shtypes.RecordStateArchived,
	})
	if err != nil {
		logger.Error().
			Str("finding_id", finding.ID).
			Err(err).
			Msg("failed to archive finding")
		return
	}
	logger.Debug().Str("finding_id", finding.ID).Msg("finding archived")
}
