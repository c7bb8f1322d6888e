package main

import (
	"strconv"
	"time"

	"mercator-hq/custodian/pkg/cli"
	"mercator-hq/custodian/pkg/compliance"
)

var (
	_ cli.Table = policyTable(nil)
	_ cli.Table = requestTable(nil)
	_ cli.Table = auditTable(nil)
)

type policyTable []*compliance.RetentionPolicy

func (t policyTable) Header() []string {
	return []string{"FRAMEWORK", "PII_TYPE", "RETENTION_DAYS", "GRACE_DAYS", "AUTO_DELETE", "ACTIVE", "EFFECTIVE"}
}

func (t policyTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, p := range t {
		piiType := p.PIIType
		if piiType == "" {
			piiType = "*"
		}
		rows = append(rows, []string{
			p.Framework,
			piiType,
			strconv.Itoa(p.RetentionDays),
			strconv.Itoa(p.GracePeriodDays),
			strconv.FormatBool(p.AutoDeletion),
			strconv.FormatBool(p.Active),
			formatDate(p.EffectiveDate),
		})
	}
	return rows
}

type requestTable []*compliance.DeletionRequest

func (t requestTable) Header() []string {
	return []string{"ID", "TYPE", "REQUESTER", "SCOPE", "STATUS", "DEADLINE", "DELETED"}
}

func (t requestTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, r := range t {
		rows = append(rows, []string{
			r.ID,
			string(r.Type),
			r.Requester,
			string(r.Scope),
			string(r.Status),
			formatDate(r.DeadlineAt),
			strconv.Itoa(r.RecordsDeleted),
		})
	}
	return rows
}

type auditTable []*compliance.AuditEntry

func (t auditTable) Header() []string {
	return []string{"TIMESTAMP", "EVENT", "IMPACT", "ACTOR", "DETECTION", "REQUEST"}
}

func (t auditTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, e := range t {
		rows = append(rows, []string{
			e.Timestamp.UTC().Format(time.RFC3339),
			e.EventType,
			string(e.ComplianceImpact),
			e.Actor + " (" + e.ActorType + ")",
			dash(e.DetectionRecordID),
			dash(e.DeletionRequestID),
		})
	}
	return rows
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.DateOnly)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// parseTime reads an RFC 3339 timestamp or a YYYY-MM-DD date. An empty value
// yields nil.
func parseTime(flag, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, cli.NewConfigError(flag, "expected RFC 3339 timestamp or YYYY-MM-DD date")
}
