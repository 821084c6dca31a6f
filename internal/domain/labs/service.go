package labs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cmlcare/cml/internal/domain/alerting"
	"github.com/cmlcare/cml/internal/platform/metrics"
)

// AlertGenerator is the alerting entry point invoked after each write.
type AlertGenerator interface {
	GenerateAlerts(ctx context.Context, obs alerting.TestObservation, patient alerting.Patient) ([]*alerting.Alert, error)
}

type Service struct {
	patients PatientRepository
	results  TestResultRepository
	alerts   AlertGenerator
	logger   zerolog.Logger
}

func NewService(patients PatientRepository, results TestResultRepository, alerts AlertGenerator, logger zerolog.Logger) *Service {
	return &Service{
		patients: patients,
		results:  results,
		alerts:   alerts,
		logger:   logger.With().Str("component", "labs").Logger(),
	}
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

// RecordResult stores r and then runs alert generation for it. The result is
// committed before alerting starts; a generation failure is logged and never
// reported to the caller.
func (s *Service) RecordResult(ctx context.Context, r *TestResult) (*RecordOutcome, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	patient, err := s.patients.GetByID(ctx, r.PatientID)
	if err != nil {
		return nil, err
	}
	if err := s.results.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("store test result: %w", err)
	}

	out := &RecordOutcome{
		Result:         r,
		Classification: r.Classify(patient.DiagnosisDate),
		Alerts:         []*alerting.Alert{},
	}

	created, err := s.alerts.GenerateAlerts(ctx, r.Observation(), patient.alertingPatient())
	if err != nil {
		metrics.RecordGenerationFailure("submission")
		s.logger.Error().Err(err).
			Str("patient_id", r.PatientID.String()).
			Str("test_result_id", r.ID.String()).
			Msg("alert generation failed")
		return out, nil
	}
	if created != nil {
		out.Alerts = created
	}
	return out, nil
}

// ListResults returns a patient's history, newest first, each row annotated
// with the classification computed against the current diagnosis date.
func (s *Service) ListResults(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*ResultView, int, error) {
	patient, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, 0, err
	}
	items, total, err := s.results.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	views := make([]*ResultView, 0, len(items))
	for _, r := range items {
		views = append(views, &ResultView{TestResult: r, Classification: r.Classify(patient.DiagnosisDate)})
	}
	return views, total, nil
}
