package storage

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"mercator-hq/custodian/pkg/compliance"
)

func errDuplicate(id string) error {
	return fmt.Errorf("duplicate id %q", id)
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func policyLabel(framework, piiType string) string {
	if piiType == "" {
		return framework + "/*"
	}
	return framework + "/" + piiType
}

// prepareEntry fills the id and timestamp of an audit entry that the caller
// left blank.
func prepareEntry(entry *compliance.AuditEntry, now func() time.Time) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now().UTC()
	}
	if entry.ComplianceImpact == "" {
		entry.ComplianceImpact = compliance.ImpactNone
	}
}

func cloneDetails(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
