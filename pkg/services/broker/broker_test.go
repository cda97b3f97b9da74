package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ops-tools/remedia/pkg/models/domain"
)

type fakeSTS struct {
	calls  int
	inputs []*sts.AssumeRoleInput
	err    error
	expiry time.Time
}

func (f *fakeSTS) AssumeRole(_ context.Context, params *sts.AssumeRoleInput, _ ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
	f.calls++
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &sts.AssumeRoleOutput{
		Credentials: &ststypes.Credentials{
			AccessKeyId:     aws.String("AKIAFAKE"),
			SecretAccessKey: aws.String("secret"),
			SessionToken:    aws.String("token"),
			Expiration:      aws.Time(f.expiry),
		},
	}, nil
}

func newTestBroker(t *testing.T, api *fakeSTS, now time.Time) *Broker {
	t.Helper()
	base := aws.Config{
		Credentials: credentials.NewStaticCredentialsProvider("base-key", "base-secret", ""),
	}
	b, err := New(base, Settings{
		HomeAccountID: "111111111111",
		RoleName:      "SecurityAutoRemediationRole",
		ExternalID:    "ext-42",
	})
	require.NoError(t, err)
	b.sts = api
	b.now = func() time.Time { return now }
	return b
}

func TestNewRequiresSettings(t *testing.T) {
	_, err := New(aws.Config{}, Settings{RoleName: "r"})
	assert.Error(t, err)
	_, err = New(aws.Config{}, Settings{HomeAccountID: "1"})
	assert.Error(t, err)
}

func TestLeaseCachedPerAccount(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	api := &fakeSTS{expiry: now.Add(time.Hour)}
	b := newTestBroker(t, api, now)

	first, err := b.Lease(context.Background(), "222222222222")
	require.NoError(t, err)
	second, err := b.Lease(context.Background(), "222222222222")
	require.NoError(t, err)

	assert.Equal(t, 1, api.calls)
	assert.Equal(t, first, second)
	assert.Equal(t, "AKIAFAKE", first.AccessKeyID)

	input := api.inputs[0]
	assert.Equal(t, "arn:aws:iam::222222222222:role/SecurityAutoRemediationRole", aws.ToString(input.RoleArn))
	assert.Equal(t, "ext-42", aws.ToString(input.ExternalId))
	assert.Equal(t, sessionName, aws.ToString(input.RoleSessionName))
}

func TestLeaseRefreshesNearExpiry(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	// Expires inside the reuse margin, so the second call must re-exchange.
	api := &fakeSTS{expiry: now.Add(2 * time.Minute)}
	b := newTestBroker(t, api, now)

	_, err := b.Lease(context.Background(), "222222222222")
	require.NoError(t, err)
	_, err = b.Lease(context.Background(), "222222222222")
	require.NoError(t, err)

	assert.Equal(t, 2, api.calls)
}

func TestLeaseHomeAccountSkipsExchange(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	api := &fakeSTS{expiry: now.Add(time.Hour)}
	b := newTestBroker(t, api, now)

	lease, err := b.Lease(context.Background(), "111111111111")
	require.NoError(t, err)
	assert.Equal(t, 0, api.calls)
	assert.Empty(t, lease.AccessKeyID)

	// Unknown-account findings are handled with the home identity too.
	lease, err = b.Lease(context.Background(), domain.UnknownAccountID)
	require.NoError(t, err)
	assert.Equal(t, 0, api.calls)
	assert.Equal(t, "111111111111", lease.AccountID)
}

func TestLeaseDeniedReturnsAuthorizationError(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	api := &fakeSTS{err: errors.New("AccessDenied")}
	b := newTestBroker(t, api, now)

	_, err := b.Lease(context.Background(), "222222222222")
	var authErr *AuthorizationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "222222222222", authErr.AccountID)
}

func TestConfigBindsLeaseCredentials(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	api := &fakeSTS{expiry: now.Add(time.Hour)}
	b := newTestBroker(t, api, now)

	lease, err := b.Lease(context.Background(), "222222222222")
	require.NoError(t, err)

	cfg := b.Config(lease)
	creds, err := cfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIAFAKE", creds.AccessKeyID)

	// Home leases carry no keys and fall back to the base chain.
	home := b.Config(domain.CredentialLease{AccountID: "111111111111"})
	creds, err = home.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "base-key", creds.AccessKeyID)
}
