package policy

import (
	"time"

	"mercator-hq/custodian/pkg/compliance"
)

// PolicySource resolves the policy that applies to one framework and PII
// type: the active type-specific policy, else the active framework default,
// else nil.
type PolicySource interface {
	Lookup(framework, piiType string) *compliance.RetentionPolicy
}

// Decision is the outcome of resolving the retention of one record.
type Decision struct {
	RetentionDays   int    `json:"retention_days"`
	GracePeriodDays int    `json:"grace_period_days"`
	AutoDeletion    bool   `json:"auto_deletion"`
	Framework       string `json:"framework,omitempty"` // Framework of the determining policy
	PolicyID        string `json:"policy_id,omitempty"`
	Fallback        bool   `json:"fallback"` // No framework resolved a policy
}

// Calculator turns a record's frameworks into a single retention decision.
// It holds no state besides the fallback period and is safe for concurrent use.
type Calculator struct {
	FallbackDays int
}

// NewCalculator creates a calculator. A negative fallback uses DefaultFallbackDays.
func NewCalculator(fallbackDays int) *Calculator {
	if fallbackDays < 0 {
		fallbackDays = DefaultFallbackDays
	}
	return &Calculator{FallbackDays: fallbackDays}
}

// Resolve picks the most restrictive (shortest) retention among the policies
// the frameworks resolve to. Equal retention periods are broken by the
// shorter grace period and then by framework name, so the result does not
// depend on the order of frameworks. When nothing resolves, the fallback
// period applies with auto deletion enabled.
func (c *Calculator) Resolve(src PolicySource, frameworks []string, piiType string) Decision {
	piiType = compliance.NormalizePIIType(piiType)

	var best *compliance.RetentionPolicy
	for _, fw := range compliance.NormalizeFrameworks(frameworks) {
		p := src.Lookup(fw, piiType)
		if p == nil {
			continue
		}
		if best == nil || morePermissive(best, p) {
			best = p
		}
	}

	if best == nil {
		return Decision{
			RetentionDays: c.FallbackDays,
			AutoDeletion:  true,
			Fallback:      true,
		}
	}
	return Decision{
		RetentionDays:   best.RetentionDays,
		GracePeriodDays: best.GracePeriodDays,
		AutoDeletion:    best.AutoDeletion,
		Framework:       best.Framework,
		PolicyID:        best.ID,
	}
}

// morePermissive reports whether cur should give way to cand.
func morePermissive(cur, cand *compliance.RetentionPolicy) bool {
	if cand.RetentionDays != cur.RetentionDays {
		return cand.RetentionDays < cur.RetentionDays
	}
	if cand.GracePeriodDays != cur.GracePeriodDays {
		return cand.GracePeriodDays < cur.GracePeriodDays
	}
	return cand.Framework < cur.Framework
}

// CalculateExpiration returns detectedAt plus the resolved retention period.
func (c *Calculator) CalculateExpiration(src PolicySource, frameworks []string, piiType string, detectedAt time.Time) (time.Time, Decision) {
	d := c.Resolve(src, frameworks, piiType)
	return ExpiresAt(detectedAt, d.RetentionDays), d
}

// ExpiresAt adds days of 24 hours to detectedAt.
func ExpiresAt(detectedAt time.Time, days int) time.Time {
	return detectedAt.Add(time.Duration(days) * 24 * time.Hour)
}

// GraceDeadline is the instant after which an expired record may be
// collected: expiresAt plus graceDays.
func GraceDeadline(expiresAt time.Time, graceDays int) time.Time {
	return expiresAt.Add(time.Duration(graceDays) * 24 * time.Hour)
}
