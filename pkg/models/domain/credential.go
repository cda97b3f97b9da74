package domain

import "time"

// CredentialLease holds short-lived credentials for one target account. It is
// owned by the credential broker and never persisted.
type CredentialLease struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	ExpiresAt       time.Time
}

// Expired reports whether the lease is past its expiry minus the safety
// margin. Callers must never act on an expired lease.
func (l CredentialLease) Expired(now time.Time, margin time.Duration) bool {
	if l.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(l.ExpiresAt.Add(-margin))
}
