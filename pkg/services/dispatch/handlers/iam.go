package handlers

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/ops-tools/remedia/pkg/models/domain"
)

// iamHandler deactivates active access keys on the user named by the finding.
// Root access-key findings carry the account root as the resource, which IAM
// rejects; that surfaces as a permanent failure and lands in the ticket.
type iamHandler struct{}

func NewIAMHandler() *iamHandler {
	return &iamHandler{}
}

func (h *iamHandler) ServiceClass() domain.ServiceClass {
	return domain.ServiceIAM
}

func (h *iamHandler) Remediate(ctx context.Context, finding domain.Finding, cfg aws.Config) (string, error) {
	res, err := primaryResource(finding)
	if err != nil {
		return "", err
	}
	user := resourceName(res)

	client := iam.NewFromConfig(cfg)
	keys, err := client.ListAccessKeys(ctx, &iam.ListAccessKeysInput{
		UserName: aws.String(user),
	})
	if err != nil {
		return "", fmt.Errorf("list access keys for %s: %w", user, err)
	}

	deactivated := 0
	for _, key := range keys.AccessKeyMetadata {
		if key.Status != types.StatusTypeActive {
			continue
		}
		_, err := client.UpdateAccessKey(ctx, &iam.UpdateAccessKeyInput{
			UserName:    aws.String(user),
			AccessKeyId: key.AccessKeyId,
			Status:      types.StatusTypeInactive,
		})
		if err != nil {
			return "", fmt.Errorf("deactivate access key %s: %w", aws.ToString(key.AccessKeyId), err)
		}
		deactivated++
	}

	return fmt.Sprintf("deactivated %d access key(s) for user %s", deactivated, user), nil
}
