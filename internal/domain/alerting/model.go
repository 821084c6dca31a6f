package alerting

import (
	"time"

	"github.com/google/uuid"
)

type AlertType string

const (
	AlertNonOptimalResult     AlertType = "non_optimal_result"
	AlertTKISwitchRecommended AlertType = "tki_switch_recommended"
	AlertMutationTestNeeded   AlertType = "mutation_test_needed"
)

func (t AlertType) Valid() bool {
	switch t {
	case AlertNonOptimalResult, AlertTKISwitchRecommended, AlertMutationTestNeeded:
		return true
	}
	return false
}

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// DefaultDedupWindow is how long an unresolved alert suppresses another of
// the same type for the same patient.
const DefaultDedupWindow = 7 * 24 * time.Hour

// Alert maps to the alerts table.
type Alert struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	PatientID  uuid.UUID  `db:"patient_id" json:"patient_id"`
	AlertType  AlertType  `db:"alert_type" json:"alert_type"`
	Message    string     `db:"message" json:"message"`
	Severity   Severity   `db:"severity" json:"severity"`
	Resolved   bool       `db:"resolved" json:"resolved"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// AlertDraft is an alert before storage assigns its id and timestamp.
type AlertDraft struct {
	PatientID uuid.UUID
	AlertType AlertType
	Message   string
	Severity  Severity
}

// TestObservation is one lab draw as seen by the generator. BCRABLIS is nil
// when the lab did not report a value.
type TestObservation struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	TestDate  time.Time
	TestType  string
	BCRABLIS  *float64
}

// Patient carries the only patient fields alerting needs.
type Patient struct {
	ID            uuid.UUID
	DiagnosisDate time.Time
}

// AlertFilter narrows List results. Nil fields are not applied.
type AlertFilter struct {
	PatientID *uuid.UUID
	Resolved  *bool
}
