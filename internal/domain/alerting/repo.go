package alerting

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("alert not found")

// AlertStore is everything the generator needs from persistence.
type AlertStore interface {
	// FindRecentUnresolved returns the newest unresolved alert of alertType
	// for the patient created at or after since, or nil when there is none.
	FindRecentUnresolved(ctx context.Context, patientID uuid.UUID, alertType AlertType, since time.Time) (*Alert, error)
	// Insert stores d, assigning id and created_at, with resolved = false.
	Insert(ctx context.Context, d *AlertDraft) (*Alert, error)
}

// PatientLocker is optionally implemented by stores that can serialise
// concurrent generator runs for the same patient.
type PatientLocker interface {
	WithPatientLock(ctx context.Context, patientID uuid.UUID, fn func(ctx context.Context) error) error
}

type AlertRepository interface {
	AlertStore
	GetByID(ctx context.Context, id uuid.UUID) (*Alert, error)
	List(ctx context.Context, f AlertFilter, limit, offset int) ([]*Alert, int, error)
	// Resolve marks the alert resolved. Resolving twice keeps the first
	// resolved_at.
	Resolve(ctx context.Context, id uuid.UUID, at time.Time) (*Alert, error)
}

// BackfillItem pairs a historical observation with its patient.
type BackfillItem struct {
	Observation TestObservation
	Patient     Patient
}

// ObservationSource lists quantitative PCR results with a value, drawn on or
// after since, oldest first.
type ObservationSource interface {
	ListBackfillCandidates(ctx context.Context, since time.Time) ([]BackfillItem, error)
}
