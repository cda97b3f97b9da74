// Package handlers contains the per-service remediation capabilities wired
// into the dispatch registry. Each handler creates its clients from the
// aws.Config handed to it, so the same handler serves any target account.
package handlers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/ops-tools/remedia/pkg/models/domain"
)

type rawResources struct {
	Resources []struct {
		ID   string `json:"Id"`
		Type string `json:"Type"`
	} `json:"Resources"`
}

// primaryResource returns the ARN of the first resource attached to the
// finding's original payload.
func primaryResource(finding domain.Finding) (arn.ARN, error) {
	var rr rawResources
	if err := json.Unmarshal(finding.Raw, &rr); err != nil {
		return arn.ARN{}, fmt.Errorf("parse finding resources: %w", err)
	}
	for _, res := range rr.Resources {
		parsed, err := arn.Parse(res.ID)
		if err == nil {
			return parsed, nil
		}
	}
	return arn.ARN{}, fmt.Errorf("finding %s has no resource ARN", finding.ID)
}

// resourceName strips the type prefix from an ARN resource segment,
// e.g. "user/alice" -> "alice", "security-group/sg-1" -> "sg-1".
func resourceName(a arn.ARN) string {
	if idx := strings.LastIndexAny(a.Resource, "/:"); idx >= 0 {
		return a.Resource[idx+1:]
	}
	return a.Resource
}
