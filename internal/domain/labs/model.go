package labs

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cmlcare/cml/internal/domain/alerting"
	"github.com/cmlcare/cml/internal/domain/response"
)

const dateLayout = "2006-01-02"

type Patient struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	FullName      string     `db:"full_name" json:"full_name"`
	DiagnosisDate time.Time  `db:"diagnosis_date" json:"diagnosis_date"`
	HospitalID    *uuid.UUID `db:"hospital_id" json:"hospital_id,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

type TestResult struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PatientID  uuid.UUID `db:"patient_id" json:"patient_id"`
	TestDate   time.Time `db:"test_date" json:"test_date"`
	TestType   string    `db:"test_type" json:"test_type"`
	BCRABLIS   *float64  `db:"bcr_abl_is" json:"bcr_abl_is,omitempty"`
	Notes      *string   `db:"notes" json:"notes,omitempty"`
	RecordedBy *string   `db:"recorded_by" json:"recorded_by,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Validate enforces the write-time contract for a new result.
func (r *TestResult) Validate() error {
	if r.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if strings.TrimSpace(r.TestType) == "" {
		return fmt.Errorf("test_type is required")
	}
	if r.TestDate.IsZero() {
		return fmt.Errorf("test_date is required")
	}
	if r.BCRABLIS != nil && *r.BCRABLIS < 0 {
		return fmt.Errorf("bcr_abl_is must be >= 0")
	}
	return nil
}

// Observation converts the stored row into the generator's input.
func (r *TestResult) Observation() alerting.TestObservation {
	return alerting.TestObservation{
		ID:        r.ID,
		PatientID: r.PatientID,
		TestDate:  r.TestDate,
		TestType:  r.TestType,
		BCRABLIS:  r.BCRABLIS,
	}
}

// Classify returns the live classification, or nil for results that are not
// quantitative BCR-ABL1 PCR or carry no value.
func (r *TestResult) Classify(diagnosisDate time.Time) *response.Classification {
	if r.TestType != response.TestTypeBCRABL1 || r.BCRABLIS == nil {
		return nil
	}
	cls := response.Classify(*r.BCRABLIS, r.TestDate, diagnosisDate)
	return &cls
}

// ResultView is a stored result annotated with its classification.
type ResultView struct {
	*TestResult
	Classification *response.Classification `json:"classification,omitempty"`
}

// RecordOutcome is returned after a result is stored.
type RecordOutcome struct {
	Result         *TestResult              `json:"test_result"`
	Classification *response.Classification `json:"classification,omitempty"`
	Alerts         []*alerting.Alert        `json:"alerts_created"`
}

func (p *Patient) Validate() error {
	if strings.TrimSpace(p.FullName) == "" {
		return fmt.Errorf("full_name is required")
	}
	if p.DiagnosisDate.IsZero() {
		return fmt.Errorf("diagnosis_date is required")
	}
	return nil
}

func (p *Patient) alertingPatient() alerting.Patient {
	return alerting.Patient{ID: p.ID, DiagnosisDate: p.DiagnosisDate}
}

func parseDate(field, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("%s is required", field)
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD", field)
	}
	return t, nil
}
