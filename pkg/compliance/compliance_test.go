package compliance

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestHashValue(t *testing.T) {
	got := HashString("hello")
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got != want {
		t.Errorf("HashString(hello) = %s, want %s", got, want)
	}
	if HashString("") != "" {
		t.Error("HashString of empty input should be empty")
	}
	if !ValidHash(got) {
		t.Errorf("ValidHash(%s) = false, want true", got)
	}
}

func TestValidHash(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{strings.Repeat("a", 64), true},
		{strings.Repeat("A", 64), false},
		{strings.Repeat("a", 63), false},
		{strings.Repeat("g", 64), false},
		{"john.doe@example.com", false},
	}
	for _, tt := range tests {
		if got := ValidHash(tt.in); got != tt.want {
			t.Errorf("ValidHash(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeFrameworks(t *testing.T) {
	got := NormalizeFrameworks([]string{"GDPR", " pci-dss ", "gdpr", "", "Attorney Client"})
	want := []string{"gdpr", "pci_dss", "attorney_client"}
	if len(got) != len(want) {
		t.Fatalf("NormalizeFrameworks() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("NormalizeFrameworks()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestErrorHelpers(t *testing.T) {
	wrapped := fmt.Errorf("flag: %w", NewInvalidTransitionError("detection", "d1", "resolved", "resolved"))
	if !IsInvalidTransition(wrapped) {
		t.Error("IsInvalidTransition() = false for wrapped error")
	}
	if IsNotFound(wrapped) {
		t.Error("IsNotFound() = true for transition error")
	}

	conflict := NewConcurrencyConflictError("detection", "d1", 3)
	if !IsConflict(conflict) || !conflict.Retryable() {
		t.Error("conflict error should be detected and retryable")
	}

	cause := errors.New("disk full")
	se := NewStorageError("sqlite", "insert_detection", cause)
	if !errors.Is(se, cause) {
		t.Error("StorageError should unwrap to its cause")
	}

	ve := &ValidationError{}
	if ve.OrNil() != nil {
		t.Error("empty ValidationError.OrNil() should be nil")
	}
	ve.Add("risk_level", "must be one of high, medium, low")
	ve.Add("confidence_score", "must be between 0 and 100")
	if !IsValidation(ve.OrNil()) {
		t.Error("IsValidation() = false")
	}
	if !strings.Contains(ve.Error(), "2 errors") {
		t.Errorf("unexpected message: %s", ve.Error())
	}
}

func TestInvalidTransitionMessage(t *testing.T) {
	err := NewInvalidTransitionError("detection", "d1", "", "in_review")
	if !strings.Contains(err.Error(), "<none> -> in_review") {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestDetectionRecordClone(t *testing.T) {
	now := time.Now()
	rec := &DetectionRecord{ID: "d1", Frameworks: []string{"gdpr"}, DeletedAt: &now}
	c := rec.Clone()
	c.Frameworks[0] = "hipaa"
	*c.DeletedAt = now.Add(time.Hour)

	if rec.Frameworks[0] != "gdpr" {
		t.Error("Clone shares Frameworks slice")
	}
	if !rec.DeletedAt.Equal(now) {
		t.Error("Clone shares DeletedAt pointer")
	}
	if rec.State() != StateSoftDeleted {
		t.Errorf("State() = %s, want %s", rec.State(), StateSoftDeleted)
	}
}

func TestDeletionRequestOverdue(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	r := &DeletionRequest{Status: StatusPending, DeadlineAt: now.Add(-time.Hour)}
	if !r.Overdue(now) {
		t.Error("pending request past deadline should be overdue")
	}
	r.Status = StatusCompleted
	if r.Overdue(now) {
		t.Error("completed request is never overdue")
	}
}
