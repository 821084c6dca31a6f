package alerting

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cmlcare/cml/internal/domain/response"
	"github.com/cmlcare/cml/internal/platform/metrics"
)

// Publisher is the event bus used to announce newly created alerts.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload interface{}) error
}

// Generator turns classified BCR-ABL1 results into alerts.
type Generator struct {
	store     AlertStore
	window    time.Duration
	logger    zerolog.Logger
	publisher Publisher
	now       func() time.Time
}

type GeneratorOption func(*Generator)

// WithPublisher announces every inserted alert on the event bus.
func WithPublisher(p Publisher) GeneratorOption {
	return func(g *Generator) { g.publisher = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) { g.now = now }
}

// NewGenerator builds a Generator. A non-positive window falls back to
// DefaultDedupWindow.
func NewGenerator(store AlertStore, window time.Duration, logger zerolog.Logger, opts ...GeneratorOption) *Generator {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	g := &Generator{
		store:  store,
		window: window,
		logger: logger.With().Str("component", "alert_generator").Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateAlerts classifies obs and inserts the resulting alerts, skipping
// any type that already has an unresolved alert for the patient inside the
// dedup window. Inapplicable observations return (nil, nil).
//
// Callers run this after the observation is durably stored and must treat a
// returned error as non-fatal.
func (g *Generator) GenerateAlerts(ctx context.Context, obs TestObservation, patient Patient) ([]*Alert, error) {
	log := g.logger.With().
		Str("patient_id", patient.ID.String()).
		Str("observation_id", obs.ID.String()).
		Logger()

	if obs.TestType != response.TestTypeBCRABL1 {
		metrics.RecordGenerationSkipped("test_type")
		return nil, nil
	}
	if obs.BCRABLIS == nil {
		metrics.RecordGenerationSkipped("missing_value")
		return nil, nil
	}
	value := *obs.BCRABLIS
	months := response.MonthsSinceDiagnosis(obs.TestDate, patient.DiagnosisDate)
	if months < 3 {
		metrics.RecordGenerationSkipped("before_first_milestone")
		log.Debug().Int("months", months).Msg("result precedes the 3 month milestone")
		return nil, nil
	}

	cls := response.ClassifyMonths(value, months)
	candidates := buildCandidates(patient.ID, value, cls)
	if len(candidates) == 0 {
		return nil, nil
	}

	var created []*Alert
	persist := func(ctx context.Context) error {
		since := g.now().Add(-g.window)
		for i := range candidates {
			d := &candidates[i]
			existing, err := g.store.FindRecentUnresolved(ctx, d.PatientID, d.AlertType, since)
			if err != nil {
				return fmt.Errorf("find recent %s alert: %w", d.AlertType, err)
			}
			if existing != nil {
				metrics.RecordAlertDeduplicated(string(d.AlertType))
				log.Debug().
					Str("alert_type", string(d.AlertType)).
					Str("existing_alert_id", existing.ID.String()).
					Msg("unresolved alert already open, skipping")
				continue
			}
			a, err := g.store.Insert(ctx, d)
			if err != nil {
				return fmt.Errorf("insert %s alert: %w", d.AlertType, err)
			}
			created = append(created, a)
		}
		return nil
	}

	var err error
	if locker, ok := g.store.(PatientLocker); ok {
		err = locker.WithPatientLock(ctx, patient.ID, persist)
	} else {
		err = persist(ctx)
	}
	if err != nil {
		return nil, err
	}

	for _, a := range created {
		metrics.RecordAlertCreated(string(a.AlertType), string(a.Severity))
		log.Info().
			Str("alert_id", a.ID.String()).
			Str("alert_type", string(a.AlertType)).
			Str("severity", string(a.Severity)).
			Str("color_band", string(cls.ColorBand)).
			Msg("alert created")
		g.publish(ctx, a)
	}
	return created, nil
}

func (g *Generator) publish(ctx context.Context, a *Alert) {
	if g.publisher == nil {
		return
	}
	subject := "cml.alert.created." + a.PatientID.String()
	if err := g.publisher.Publish(ctx, subject, a); err != nil {
		g.logger.Warn().Err(err).Str("alert_id", a.ID.String()).Msg("publish alert event")
	}
}

// buildCandidates applies the alerting rules to one classification. RED
// emits only tki_switch_recommended; a non_optimal_result is not added on top
// of it. The mutation alert is independent of the colour band.
func buildCandidates(patientID uuid.UUID, value float64, cls response.Classification) []AlertDraft {
	var out []AlertDraft
	pct := formatPercent(value)

	switch cls.ColorBand {
	case response.BandRed:
		out = append(out, AlertDraft{
			PatientID: patientID,
			AlertType: AlertTKISwitchRecommended,
			Severity:  SeverityHigh,
			Message: fmt.Sprintf("TKI-resistant disease: BCR-ABL1 IS %s at %d months (RED). Consider switching TKI.",
				pct, cls.MonthsSinceDiagnosis),
		})
	case response.BandYellow, response.BandOrange, response.BandLightGreen:
		sev := SeverityMedium
		if cls.ColorBand == response.BandLightGreen {
			sev = SeverityLow
		}
		out = append(out, AlertDraft{
			PatientID: patientID,
			AlertType: AlertNonOptimalResult,
			Severity:  sev,
			Message: fmt.Sprintf("Non-optimal response (%s): BCR-ABL1 IS %s at %d months.",
				cls.ColorBand, pct, cls.MonthsSinceDiagnosis),
		})
	}

	if cls.MutationTestRecommended {
		out = append(out, AlertDraft{
			PatientID: patientID,
			AlertType: AlertMutationTestNeeded,
			Severity:  SeverityHigh,
			Message: fmt.Sprintf("BCR::ABL1 kinase-domain mutation test recommended: BCR-ABL1 IS %s at %d months (ELN %s).",
				pct, cls.MonthsSinceDiagnosis, cls.ELNStatus),
		})
	}
	return out
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "%"
}
