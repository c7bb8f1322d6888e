package detection

import (
	"context"
	"strings"

	"mercator-hq/custodian/pkg/compliance"
	"mercator-hq/custodian/pkg/compliance/audit"
)

// FlagInput describes why a record is flagged for review.
type FlagInput struct {
	Reason           string `json:"reason"`
	SeverityOverride string `json:"severity_override,omitempty"`
	ActionRequired   string `json:"action_required,omitempty"`
}

// ResolveInput is the reviewer's decision.
type ResolveInput struct {
	Decision       compliance.ReviewStatus `json:"decision"` // resolved or dismissed
	AdminNotes     string                  `json:"admin_notes,omitempty"`
	ActionRequired string                  `json:"action_required,omitempty"`
}

// FlagForReview marks a record for administrative review. A record that was
// never flagged, or whose last review is closed, moves to pending; a record
// already awaiting review keeps its status and gets the new flag metadata.
// Soft-deleted records cannot be flagged.
func (s *Service) FlagForReview(ctx context.Context, id string, in FlagInput) (*compliance.DetectionRecord, error) {
	severity := compliance.RiskLevel(strings.ToLower(strings.TrimSpace(in.SeverityOverride)))
	if severity != "" && !severity.Valid() {
		return nil, compliance.NewValidationError("severity_override", "must be one of high, medium, low")
	}

	rec, err := s.store.GetDetection(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.DeletedAt != nil {
		return nil, &compliance.InvalidTransitionError{
			Kind: "detection", ID: id,
			From: string(rec.ReviewStatus), To: string(compliance.ReviewPending),
			Reason: "record is deleted",
		}
	}

	from := rec.ReviewStatus
	entry := audit.NewEntry(ctx, compliance.EventReviewFlagged, compliance.ImpactMedium)
	now := s.now().UTC()

	rec.FlaggedForReview = true
	rec.FlaggedBy = entry.Actor
	rec.FlaggedAt = &now
	rec.FlagReason = in.Reason
	if severity != "" {
		rec.SeverityOverride = severity
	}
	if in.ActionRequired != "" {
		rec.ActionRequired = in.ActionRequired
	}
	if !from.Open() {
		rec.ReviewStatus = compliance.ReviewPending
		rec.ReviewedBy = ""
		rec.ReviewedAt = nil
	}

	entry.DetectionRecordID = id
	entry.Details["from_status"] = string(from)
	entry.Details["to_status"] = string(rec.ReviewStatus)
	entry.Details["reason"] = in.Reason
	if severity != "" {
		entry.Details["severity_override"] = string(severity)
	}
	if in.ActionRequired != "" {
		entry.Details["action_required"] = in.ActionRequired
	}

	if err := s.store.UpdateDetection(ctx, rec, entry); err != nil {
		return nil, err
	}
	s.metrics.RecordReviewTransition(string(rec.ReviewStatus))
	s.metrics.RecordAuditEntry(entry.EventType, string(entry.ComplianceImpact))

	s.logger.InfoContext(ctx, "detection flagged for review",
		"detection_id", id,
		"from_status", from,
		"review_status", rec.ReviewStatus,
	)
	return rec, nil
}

// StartReview moves a pending review to in_review.
func (s *Service) StartReview(ctx context.Context, id string) (*compliance.DetectionRecord, error) {
	rec, err := s.store.GetDetection(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.ReviewStatus != compliance.ReviewPending {
		return nil, compliance.NewInvalidTransitionError("detection", id, string(rec.ReviewStatus), string(compliance.ReviewInReview))
	}

	entry := audit.NewEntry(ctx, compliance.EventReviewStarted, compliance.ImpactLow)
	entry.DetectionRecordID = id
	entry.Details["from_status"] = string(rec.ReviewStatus)
	entry.Details["to_status"] = string(compliance.ReviewInReview)

	rec.ReviewStatus = compliance.ReviewInReview
	rec.ReviewedBy = entry.Actor

	if err := s.store.UpdateDetection(ctx, rec, entry); err != nil {
		return nil, err
	}
	s.metrics.RecordReviewTransition(string(rec.ReviewStatus))
	s.metrics.RecordAuditEntry(entry.EventType, string(entry.ComplianceImpact))
	return rec, nil
}

// ResolveReview closes an open review as resolved or dismissed. Records whose
// review is not pending or in_review return InvalidTransitionError.
func (s *Service) ResolveReview(ctx context.Context, id string, in ResolveInput) (*compliance.DetectionRecord, error) {
	decision := compliance.ReviewStatus(strings.ToLower(strings.TrimSpace(string(in.Decision))))
	if decision != compliance.ReviewResolved && decision != compliance.ReviewDismissed {
		return nil, compliance.NewValidationError("decision", "must be resolved or dismissed")
	}

	rec, err := s.store.GetDetection(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.ReviewStatus.Open() {
		return nil, compliance.NewInvalidTransitionError("detection", id, string(rec.ReviewStatus), string(decision))
	}

	from := rec.ReviewStatus
	entry := audit.NewEntry(ctx, compliance.EventReviewResolved, compliance.ImpactMedium)
	now := s.now().UTC()

	rec.ReviewStatus = decision
	rec.ReviewedBy = entry.Actor
	rec.ReviewedAt = &now
	rec.FlaggedForReview = false
	if in.AdminNotes != "" {
		rec.AdminNotes = in.AdminNotes
	}
	if in.ActionRequired != "" {
		rec.ActionRequired = in.ActionRequired
	}

	entry.DetectionRecordID = id
	entry.Details["from_status"] = string(from)
	entry.Details["to_status"] = string(decision)
	if in.ActionRequired != "" {
		entry.Details["action_required"] = in.ActionRequired
	}

	if err := s.store.UpdateDetection(ctx, rec, entry); err != nil {
		return nil, err
	}
	s.metrics.RecordReviewTransition(string(decision))
	s.metrics.RecordAuditEntry(entry.EventType, string(entry.ComplianceImpact))

	s.logger.InfoContext(ctx, "detection review resolved",
		"detection_id", id,
		"review_status", decision,
	)
	return rec, nil
}
