package normalizer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/ops-tools/remedia/pkg/models/domain"
)

// Error reports a payload that could not be turned into a Finding. It is
// terminal for that finding only.
type Error struct {
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("normalize finding: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("normalize finding: %s", e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

// rawFinding covers the fields we read from a Security Hub shaped payload.
// Everything else rides along in Finding.Raw.
type rawFinding struct {
	ID           string `json:"Id"`
	AwsAccountID string `json:"AwsAccountId"`
	ProductArn   string `json:"ProductArn"`
	GeneratorID  string `json:"GeneratorId"`
	Title        string `json:"Title"`
	Description  string `json:"Description"`
	Types        []string
	Severity     struct {
		Label string `json:"Label"`
	} `json:"Severity"`
	Resources []struct {
		ID   string `json:"Id"`
		Type string `json:"Type"`
	} `json:"Resources"`
}

// serviceRule pairs a substring pattern with the service class it selects.
// Rules are evaluated in order, first match wins, so more specific patterns
// must come before broader ones. Kept as data so new services are additive.
type serviceRule struct {
	pattern string
	class   domain.ServiceClass
}

var serviceRules = []serviceRule{
	{"secretsmanager", domain.ServiceSecretsManager},
	{"cloudformation", domain.ServiceCloudFormation},
	{"apigateway", domain.ServiceAPIGateway},
	{"elasticache", domain.ServiceElastiCache},
	{"dynamodb", domain.ServiceDynamoDB},
	{"guardduty", domain.ServiceGuardDuty},
	{"inspector", domain.ServiceInspector},
	{"sagemaker", domain.ServiceSageMaker},
	{"redshift", domain.ServiceRedshift},
	{"shield", domain.ServiceShield},
	{"macie", domain.ServiceMacie},
	{"lambda", domain.ServiceLambda},
	{"iam", domain.ServiceIAM},
	{"s3", domain.ServiceS3},
	{"ec2", domain.ServiceEC2},
	{"rds", domain.ServiceRDS},
	{"kms", domain.ServiceKMS},
	{"ssm", domain.ServiceSSM},
	{"waf", domain.ServiceWAF},
	{"acm", domain.ServiceACM},
	{"eks", domain.ServiceEKS},
	{"ecr", domain.ServiceECR},
	{"ecs", domain.ServiceECS},
	{"glue", domain.ServiceGlue},
}

type Normalizer struct{}

func New() *Normalizer {
	return &Normalizer{}
}

// Normalize parses one raw payload into a canonical Finding. A finding with
// no recoverable account is tagged with the "unknown" account and a finding
// with no recognizable service is tagged "unclassified"; neither is rejected,
// because every parseable finding must still produce a ticket.
func (n *Normalizer) Normalize(raw json.RawMessage) (domain.Finding, error) {
	var rf rawFinding
	if err := json.Unmarshal(raw, &rf); err != nil {
		return domain.Finding{}, &Error{Reason: "malformed payload", Cause: err}
	}
	if rf.ID == "" {
		return domain.Finding{}, &Error{Reason: "missing finding id"}
	}

	title := rf.Title
	if title == "" {
		title = "Security Finding"
	}

	return domain.Finding{
		ID:          rf.ID,
		AccountID:   extractAccountID(rf),
		Service:     classifyService(rf),
		Severity:    domain.ParseSeverity(rf.Severity.Label),
		Title:       title,
		Description: rf.Description,
		Raw:         raw,
	}, nil
}

// extractAccountID tries, in order: the explicit account field, the account
// segment of the product ARN, then any resource ARN. First match wins.
func extractAccountID(rf rawFinding) string {
	if rf.AwsAccountID != "" {
		return rf.AwsAccountID
	}
	if id := accountFromARN(rf.ProductArn); id != "" {
		return id
	}
	for _, res := range rf.Resources {
		if id := accountFromARN(res.ID); id != "" {
			return id
		}
	}
	return domain.UnknownAccountID
}

func accountFromARN(s string) string {
	parsed, err := arn.Parse(s)
	if err != nil {
		return ""
	}
	return parsed.AccountID
}

func classifyService(rf rawFinding) domain.ServiceClass {
	parts := append([]string{rf.ProductArn, rf.GeneratorID}, rf.Types...)
	haystack := strings.ToLower(strings.Join(parts, " "))
	for _, rule := range serviceRules {
		if strings.Contains(haystack, rule.pattern) {
			return rule.class
		}
	}
	return domain.ServiceUnclassified
}
