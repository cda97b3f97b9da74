package handlers

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"

	"github.com/ops-tools/remedia/pkg/models/domain"
)

// rdsHandler turns on deletion protection for the instance named by the
// finding.
type rdsHandler struct{}

func NewRDSHandler() *rdsHandler {
	return &rdsHandler{}
}

func (h *rdsHandler) ServiceClass() domain.ServiceClass {
	return domain.ServiceRDS
}

func (h *rdsHandler) Remediate(ctx context.Context, finding domain.Finding, cfg aws.Config) (string, error) {
	res, err := primaryResource(finding)
	if err != nil {
		return "", err
	}
	instance := resourceName(res)

	client := rds.NewFromConfig(cfg)
	_, err = client.ModifyDBInstance(ctx, &rds.ModifyDBInstanceInput{
		DBInstanceIdentifier: aws.String(instance),
		DeletionProtection:   aws.Bool(true),
		ApplyImmediately:     aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("enable deletion protection on %s: %w", instance, err)
	}

	return fmt.Sprintf("enabled deletion protection on db instance %s", instance), nil
}
