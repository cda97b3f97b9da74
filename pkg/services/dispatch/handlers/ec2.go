package handlers

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/ops-tools/remedia/pkg/models/domain"
)

// ec2Handler revokes security group ingress rules open to the world.
type ec2Handler struct{}

func NewEC2Handler() *ec2Handler {
	return &ec2Handler{}
}

func (h *ec2Handler) ServiceClass() domain.ServiceClass {
	return domain.ServiceEC2
}

func (h *ec2Handler) Remediate(ctx context.Context, finding domain.Finding, cfg aws.Config) (string, error) {
	res, err := primaryResource(finding)
	if err != nil {
		return "", err
	}
	groupID := resourceName(res)

	client := ec2.NewFromConfig(cfg)
	desc, err := client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		GroupIds: []string{groupID},
	})
	if err != nil {
		return "", fmt.Errorf("describe security group %s: %w", groupID, err)
	}

	revoked := 0
	for _, group := range desc.SecurityGroups {
		for _, perm := range group.IpPermissions {
			open := false
			for _, ipRange := range perm.IpRanges {
				if aws.ToString(ipRange.CidrIp) == "0.0.0.0/0" {
					open = true
					break
				}
			}
			if !open {
				continue
			}
			_, err := client.RevokeSecurityGroupIngress(ctx, &ec2.RevokeSecurityGroupIngressInput{
				GroupId:       group.GroupId,
				IpPermissions: []ec2types.IpPermission{perm},
			})
			if err != nil {
				return "", fmt.Errorf("revoke open ingress on %s: %w", groupID, err)
			}
			revoked++
		}
	}

	return fmt.Sprintf("revoked %d world-open ingress rule(s) on %s", revoked, groupID), nil
}
