package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog"

	"github.com/ops-tools/remedia/pkg/models/domain"
)

// AuthorizationError means the trust exchange for one account was denied. It
// is terminal for that dispatch attempt; ticketing proceeds with the home
// identity.
type AuthorizationError struct {
	AccountID string
	Cause     error
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorization failed for account %s: %v", e.AccountID, e.Cause)
}

func (e *AuthorizationError) Unwrap() error { return e.Cause }

// AssumeRoleAPI is the slice of the STS client the broker uses.
type AssumeRoleAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

const (
	// expiryMargin is subtracted from a lease's expiry when deciding whether
	// it can be reused, so callers never receive a lease about to lapse
	// mid-operation.
	expiryMargin = 5 * time.Minute

	sessionDuration = time.Hour
	sessionName     = "remedia-dispatch"
)

type Settings struct {
	HomeAccountID string
	RoleName      string
	ExternalID    string
}

// Broker resolves time-boxed credentials per target account. Leases are
// cached per account behind per-account locks so unrelated accounts never
// serialize on each other.
type Broker struct {
	settings Settings
	sts      AssumeRoleAPI
	base     aws.Config

	mu       sync.Mutex
	accounts map[string]*accountLease

	now func() time.Time
}

type accountLease struct {
	mu    sync.Mutex
	lease domain.CredentialLease
	held  bool
}

func New(base aws.Config, settings Settings) (*Broker, error) {
	if settings.HomeAccountID == "" {
		return nil, fmt.Errorf("home account id is required")
	}
	if settings.RoleName == "" {
		return nil, fmt.Errorf("remediation role name is required")
	}
	return &Broker{
		settings: settings,
		sts:      sts.NewFromConfig(base),
		base:     base,
		accounts: make(map[string]*accountLease),
		now:      time.Now,
	}, nil
}

// Lease returns valid credentials for the target account, performing a
// cross-account AssumeRole scoped by the shared external id when the account
// differs from the home account. Expired cache entries are refreshed
// transparently.
func (b *Broker) Lease(ctx context.Context, accountID string) (domain.CredentialLease, error) {
	if accountID == b.settings.HomeAccountID || accountID == domain.UnknownAccountID {
		return b.homeLease(ctx)
	}

	entry := b.entry(accountID)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.held && !entry.lease.Expired(b.now(), expiryMargin) {
		return entry.lease, nil
	}

	lease, err := b.exchange(ctx, accountID)
	if err != nil {
		return domain.CredentialLease{}, &AuthorizationError{AccountID: accountID, Cause: err}
	}

	zerolog.Ctx(ctx).Info().
		Str("account_id", accountID).
		Time("expires_at", lease.ExpiresAt).
		Msg("acquired cross-account credential lease")

	entry.lease = lease
	entry.held = true
	return lease, nil
}

// Config builds an aws.Config bound to the lease's credentials. A home-account
// lease carries no explicit keys and reuses the broker's base identity.
func (b *Broker) Config(lease domain.CredentialLease) aws.Config {
	if lease.AccessKeyID == "" {
		return b.base
	}
	cfg := b.base.Copy()
	cfg.Credentials = credentials.NewStaticCredentialsProvider(
		lease.AccessKeyID, lease.SecretAccessKey, lease.SessionToken,
	)
	return cfg
}

func (b *Broker) entry(accountID string) *accountLease {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.accounts[accountID]
	if !ok {
		e = &accountLease{}
		b.accounts[accountID] = e
	}
	return e
}

func (b *Broker) homeLease(ctx context.Context) (domain.CredentialLease, error) {
	// Local identity, no network exchange. Keys stay empty so Config falls
	// back to the base credential chain.
	if _, err := b.base.Credentials.Retrieve(ctx); err != nil {
		return domain.CredentialLease{}, &AuthorizationError{AccountID: b.settings.HomeAccountID, Cause: err}
	}
	return domain.CredentialLease{AccountID: b.settings.HomeAccountID}, nil
}

func (b *Broker) exchange(ctx context.Context, accountID string) (domain.CredentialLease, error) {
	roleArn := fmt.Sprintf("arn:aws:iam::%s:role/%s", accountID, b.settings.RoleName)
	input := &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleArn),
		RoleSessionName: aws.String(sessionName),
		DurationSeconds: aws.Int32(int32(sessionDuration.Seconds())),
	}
	if b.settings.ExternalID != "" {
		input.ExternalId = aws.String(b.settings.ExternalID)
	}

	out, err := b.sts.AssumeRole(ctx, input)
	if err != nil {
		return domain.CredentialLease{}, fmt.Errorf("assume role %s: %w", roleArn, err)
	}

	creds := out.Credentials
	lease := domain.CredentialLease{
		AccountID:       accountID,
		AccessKeyID:     aws.ToString(creds.AccessKeyId),
		SecretAccessKey: aws.ToString(creds.SecretAccessKey),
		SessionToken:    aws.ToString(creds.SessionToken),
	}
	if creds.Expiration != nil {
		lease.ExpiresAt = *creds.Expiration
	} else {
		lease.ExpiresAt = b.now().Add(sessionDuration)
	}
	return lease, nil
}
