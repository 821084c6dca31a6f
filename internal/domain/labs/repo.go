package labs

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
}

type TestResultRepository interface {
	Create(ctx context.Context, r *TestResult) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*TestResult, int, error)
}
