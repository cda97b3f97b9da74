package handlers

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ops-tools/remedia/pkg/models/domain"
)

// s3Handler blocks all public access on the bucket named by the finding.
type s3Handler struct{}

func NewS3Handler() *s3Handler {
	return &s3Handler{}
}

func (h *s3Handler) ServiceClass() domain.ServiceClass {
	return domain.ServiceS3
}

func (h *s3Handler) Remediate(ctx context.Context, finding domain.Finding, cfg aws.Config) (string, error) {
	res, err := primaryResource(finding)
	if err != nil {
		return "", err
	}
	bucket := resourceName(res)

	client := s3.NewFromConfig(cfg)
	_, err = client.PutPublicAccessBlock(ctx, &s3.PutPublicAccessBlockInput{
		Bucket: aws.String(bucket),
		PublicAccessBlockConfiguration: &types.PublicAccessBlockConfiguration{
			BlockPublicAcls:       aws.Bool(true),
			BlockPublicPolicy:     aws.Bool(true),
			IgnorePublicAcls:      aws.Bool(true),
			RestrictPublicBuckets: aws.Bool(true),
		},
	})
	if err != nil {
		return "", fmt.Errorf("block public access on bucket %s: %w", bucket, err)
	}

	return fmt.Sprintf("enabled public access block on bucket %s", bucket), nil
}
