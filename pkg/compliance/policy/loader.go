package policy

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"mercator-hq/custodian/pkg/compliance"
)

// SeedFile is the YAML layout of a policy seed file:
//
//	policies:
//	  - framework: hipaa
//	    pii_type: lab_result
//	    retention_days: 1825
//	    grace_period_days: 30
//	  - framework: internal_audit
//	    retention_days: 400
//	    auto_deletion: false
type SeedFile struct {
	Policies []SeedPolicy `yaml:"policies"`
}

// SeedPolicy is one policy in a seed file. Omitted auto_deletion and active
// default to true.
type SeedPolicy struct {
	Framework                  string    `yaml:"framework"`
	PIIType                    string    `yaml:"pii_type"`
	RetentionDays              *int      `yaml:"retention_days"`
	GracePeriodDays            int       `yaml:"grace_period_days"`
	AutoDeletion               *bool     `yaml:"auto_deletion"`
	ImmediateDeletionOnRequest bool      `yaml:"immediate_deletion_on_request"`
	Active                     *bool     `yaml:"active"`
	EffectiveDate              time.Time `yaml:"effective_date"`
	Description                string    `yaml:"description"`
}

// LoadSeedFile reads and parses a policy seed file.
func LoadSeedFile(path string) ([]*compliance.RetentionPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	policies, err := ParseSeed(data)
	if err != nil {
		return nil, fmt.Errorf("invalid seed file %s: %w", path, err)
	}
	return policies, nil
}

// ParseSeed parses seed YAML. Every entry is validated; all problems are
// reported together in one ValidationError.
func ParseSeed(data []byte) ([]*compliance.RetentionPolicy, error) {
	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	verr := &compliance.ValidationError{}
	seen := make(map[compliance.PolicyKey]int, len(file.Policies))
	out := make([]*compliance.RetentionPolicy, 0, len(file.Policies))

	for i, sp := range file.Policies {
		field := fmt.Sprintf("policies[%d]", i)
		p := &compliance.RetentionPolicy{
			Framework:                  compliance.NormalizeFramework(sp.Framework),
			PIIType:                    compliance.NormalizePIIType(sp.PIIType),
			GracePeriodDays:            sp.GracePeriodDays,
			AutoDeletion:               sp.AutoDeletion == nil || *sp.AutoDeletion,
			ImmediateDeletionOnRequest: sp.ImmediateDeletionOnRequest,
			Active:                     sp.Active == nil || *sp.Active,
			EffectiveDate:              sp.EffectiveDate,
			Description:                sp.Description,
		}

		if p.Framework == "" {
			verr.Add(field+".framework", "framework is required")
		}
		if sp.RetentionDays == nil {
			verr.Add(field+".retention_days", "retention_days is required")
		} else {
			p.RetentionDays = *sp.RetentionDays
			if p.RetentionDays < 0 {
				verr.Add(field+".retention_days", "must be non-negative")
			}
		}
		if p.GracePeriodDays < 0 {
			verr.Add(field+".grace_period_days", "must be non-negative")
		}
		if j, dup := seen[p.Key()]; dup && p.Framework != "" {
			verr.Add(field, fmt.Sprintf("duplicates policies[%d] (%s)", j, policyLabel(p.Framework, p.PIIType)))
		}
		seen[p.Key()] = i
		out = append(out, p)
	}

	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return out, nil
}
