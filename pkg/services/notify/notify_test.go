package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ops-tools/remedia/pkg/models/domain"
)

type fakeSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{}, nil
}

type fakeCW struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (f *fakeCW) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func sampleEvent() domain.Event {
	return domain.Event{
		FindingID:          "f-1",
		AccountID:          "111111111111",
		Severity:           "HIGH",
		RemediationOutcome: domain.OutcomeSucceeded,
		TicketID:           "GH-42",
		TicketBackend:      "github",
		Timestamp:          time.Now().UTC(),
	}
}

func TestNotifyPublishesEvent(t *testing.T) {
	snsAPI := &fakeSNS{}
	n := &Notifier{
		settings: Settings{TopicARN: "arn:aws:sns:us-west-2:111111111111:remediation"},
		sns:      snsAPI,
		cw:       &fakeCW{},
	}

	n.Notify(context.Background(), sampleEvent())

	require.Len(t, snsAPI.inputs, 1)
	input := snsAPI.inputs[0]
	assert.Equal(t, "arn:aws:sns:us-west-2:111111111111:remediation", aws.ToString(input.TopicArn))
	assert.Contains(t, aws.ToString(input.Subject), "SUCCEEDED")

	var event domain.Event
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(input.Message)), &event))
	assert.Equal(t, "f-1", event.FindingID)
	assert.Equal(t, "GH-42", event.TicketID)
}

func TestNotifyWithoutTopicIsNoop(t *testing.T) {
	snsAPI := &fakeSNS{}
	n := &Notifier{sns: snsAPI, cw: &fakeCW{}}

	n.Notify(context.Background(), sampleEvent())

	assert.Empty(t, snsAPI.inputs)
}

func TestNotifyFailureDoesNotPanic(t *testing.T) {
	n := &Notifier{
		settings: Settings{TopicARN: "arn:aws:sns:us-west-2:111111111111:remediation"},
		sns:      &fakeSNS{err: errors.New("topic gone")},
		cw:       &fakeCW{},
	}

	// Delivery failures are logged only.
	n.Notify(context.Background(), sampleEvent())
}

func TestRecordBatch(t *testing.T) {
	cw := &fakeCW{}
	n := &Notifier{sns: &fakeSNS{}, cw: cw}

	n.RecordBatch(context.Background(), 3, 1)

	require.Len(t, cw.inputs, 1)
	input := cw.inputs[0]
	assert.Equal(t, "Remedia/Orchestrator", aws.ToString(input.Namespace))
	require.Len(t, input.MetricData, 2)
	assert.Equal(t, "RemediatedFindings", aws.ToString(input.MetricData[0].MetricName))
	assert.Equal(t, float64(3), aws.ToFloat64(input.MetricData[0].Value))
	assert.Equal(t, "FailedRemediations", aws.ToString(input.MetricData[1].MetricName))
	assert.Equal(t, float64(1), aws.ToFloat64(input.MetricData[1].Value))
}
