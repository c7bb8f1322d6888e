package policy

import "mercator-hq/custodian/pkg/compliance"

// Built-in framework tags. The framework set is open: any normalized tag with
// a policy row participates in resolution.
const (
	FrameworkHIPAA          = "hipaa"
	FrameworkGDPR           = "gdpr"
	FrameworkPCIDSS         = "pci_dss"
	FrameworkAttorneyClient = "attorney_client"
	FrameworkCCPA           = "ccpa"
)

// DefaultFallbackDays is the retention applied when no framework of a record
// resolves to an active policy.
const DefaultFallbackDays = 1095

// DefaultPolicies returns the seed policies installed on first start.
//
//	hipaa            default  2190d (6y), grace 30
//	gdpr             default  1095d (3y), grace 30, immediate erasure on request
//	pci_dss          default   365d,      grace 7
//	pci_dss          credit_card 0d,      grace 0 (never retained past detection)
//	attorney_client  default  2555d (7y), auto deletion off (legal hold)
//	ccpa             default   730d (2y), grace 30, immediate erasure on request
func DefaultPolicies() []*compliance.RetentionPolicy {
	return []*compliance.RetentionPolicy{
		{
			Framework:       FrameworkHIPAA,
			RetentionDays:   2190,
			GracePeriodDays: 30,
			AutoDeletion:    true,
			Active:          true,
			Description:     "HIPAA medical record retention (6 years)",
		},
		{
			Framework:                  FrameworkGDPR,
			RetentionDays:              1095,
			GracePeriodDays:            30,
			AutoDeletion:               true,
			ImmediateDeletionOnRequest: true,
			Active:                     true,
			Description:                "GDPR storage limitation default (3 years)",
		},
		{
			Framework:       FrameworkPCIDSS,
			RetentionDays:   365,
			GracePeriodDays: 7,
			AutoDeletion:    true,
			Active:          true,
			Description:     "PCI-DSS cardholder data default (1 year)",
		},
		{
			Framework:       FrameworkPCIDSS,
			PIIType:         "credit_card",
			RetentionDays:   0,
			GracePeriodDays: 0,
			AutoDeletion:    true,
			Active:          true,
			Description:     "PCI-DSS: primary account numbers are not retained",
		},
		{
			Framework:       FrameworkAttorneyClient,
			RetentionDays:   2555,
			GracePeriodDays: 30,
			AutoDeletion:    false,
			Active:          true,
			Description:     "Attorney-client privileged material (7 years, manual disposal)",
		},
		{
			Framework:                  FrameworkCCPA,
			RetentionDays:              730,
			GracePeriodDays:            30,
			AutoDeletion:               true,
			ImmediateDeletionOnRequest: true,
			Active:                     true,
			Description:                "CCPA personal information default (2 years)",
		},
	}
}
