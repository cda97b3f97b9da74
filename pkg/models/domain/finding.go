package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Severity is ordered: comparisons with < and >= are meaningful.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "MEDIUM"
	}
}

// ParseSeverity maps a severity label to the ordered enum. Unknown labels
// default to MEDIUM rather than failing, matching the ingestion policy for
// malformed severity fields.
func ParseSeverity(label string) Severity {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "LOW", "INFORMATIONAL":
		return SeverityLow
	case "HIGH":
		return SeverityHigh
	case "CRITICAL":
		return SeverityCritical
	default:
		return SeverityMedium
	}
}

type ServiceClass string

const (
	ServiceIAM            ServiceClass = "iam"
	ServiceS3             ServiceClass = "s3"
	ServiceEC2            ServiceClass = "ec2"
	ServiceRDS            ServiceClass = "rds"
	ServiceLambda         ServiceClass = "lambda"
	ServiceKMS            ServiceClass = "kms"
	ServiceGuardDuty      ServiceClass = "guardduty"
	ServiceInspector      ServiceClass = "inspector"
	ServiceSSM            ServiceClass = "ssm"
	ServiceMacie          ServiceClass = "macie"
	ServiceWAF            ServiceClass = "waf"
	ServiceShield         ServiceClass = "shield"
	ServiceACM            ServiceClass = "acm"
	ServiceSecretsManager ServiceClass = "secretsmanager"
	ServiceCloudFormation ServiceClass = "cloudformation"
	ServiceAPIGateway     ServiceClass = "apigateway"
	ServiceElastiCache    ServiceClass = "elasticache"
	ServiceDynamoDB       ServiceClass = "dynamodb"
	ServiceEKS            ServiceClass = "eks"
	ServiceECR            ServiceClass = "ecr"
	ServiceECS            ServiceClass = "ecs"
	ServiceRedshift       ServiceClass = "redshift"
	ServiceSageMaker      ServiceClass = "sagemaker"
	ServiceGlue           ServiceClass = "glue"

	// ServiceUnclassified disables remediation dispatch but not ticketing.
	ServiceUnclassified ServiceClass = "unclassified"
)

// UnknownAccountID tags findings whose owning account could not be
// determined. They are handled with the orchestrator's home identity.
const UnknownAccountID = "unknown"

// Finding is the canonical, immutable form of an ingested security finding.
type Finding struct {
	ID          string
	AccountID   string
	Service     ServiceClass
	Severity    Severity
	Title       string
	Description string

	// Raw is the original payload, retained for audit and ticket rendering.
	Raw json.RawMessage
}

// Key is the dedup key: reprocessing a finding with the same key must update
// the existing ticket instead of creating a new one.
func (f Finding) Key() string {
	return fmt.Sprintf("%s/%s", f.AccountID, f.ID)
}
