package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/rs/zerolog"

	"github.com/ops-tools/remedia/pkg/models/domain"
)

const metricNamespace = "Remedia/Orchestrator"

type PublishAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type MetricAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

type Settings struct {
	TopicARN string
}

// Notifier publishes one fire-and-forget event per finding to SNS and batch
// counters to CloudWatch. Delivery failures are logged, never propagated.
type Notifier struct {
	settings Settings
	sns      PublishAPI
	cw       MetricAPI
}

func New(cfg aws.Config, settings Settings) *Notifier {
	return &Notifier{
		settings: settings,
		sns:      sns.NewFromConfig(cfg),
		cw:       cloudwatch.NewFromConfig(cfg),
	}
}

func (n *Notifier) Notify(ctx context.Context, event domain.Event) {
	logger := zerolog.Ctx(ctx)

	if n.settings.TopicARN == "" {
		logger.Debug().Msg("no notification topic configured")
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode notification event")
		return
	}

	_, err = n.sns.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.settings.TopicARN),
		Message:  aws.String(string(body)),
		Subject:  aws.String(fmt.Sprintf("Finding remediation - %s", event.RemediationOutcome)),
	})
	if err != nil {
		logger.Error().
			Str("finding_id", event.FindingID).
			Err(err).
			Msg("failed to publish notification")
		return
	}
	logger.Debug().Str("finding_id", event.FindingID).Msg("notification published")
}

// RecordBatch pushes remediated/failed counters for one batch.
func (n *Notifier) RecordBatch(ctx context.Context, remediated, failed int) {
	now := time.Now().UTC()
	_, err := n.cw.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(metricNamespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String("RemediatedFindings"),
				Value:      aws.Float64(float64(remediated)),
				Unit:       cwtypes.StandardUnitCount,
				Timestamp:  aws.Time(now),
			},
			{
				MetricName: aws.String("FailedRemediations"),
				Value:      aws.Float64(float64(failed)),
				Unit:       cwtypes.StandardUnitCount,
				Timestamp:  aws.Time(now),
			},
		},
	})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to push batch metrics")
	}
}
