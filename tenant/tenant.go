// Package tenant defines the identity used for scoping and quotas.
//
// A Tenant is created out-of-band (provisioning is an external
// collaborator, see authn) and is immutable from the core's
// perspective: jobqueue only ever reads Tenant rows.
package tenant

// Tenant identifies the owner of a set of jobs and carries the
// per-tenant admission policy.
type Tenant struct {
	Id string `json:"tenant_id"`

	// CredentialFingerprint is opaque to the core; it is used only by
	// the authn collaborator to map a bearer token to this Tenant.
	CredentialFingerprint string `json:"-"`

	MaxConcurrentJobs  int `json:"max_concurrent_jobs"`
	RateLimitPerMinute int `json:"rate_limit_per_minute"`

	DisplayName string `json:"display_name,omitempty"`
}

// DefaultMaxConcurrentJobs is applied when a Tenant is provisioned
// without an explicit override.
const DefaultMaxConcurrentJobs = 5

// DefaultRateLimitPerMinute is applied when a Tenant is provisioned
// without an explicit override.
const DefaultRateLimitPerMinute = 10
