package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cmlcare/cml/internal/platform/metrics"
)

// BackfillResult summarises one backfill run.
type BackfillResult struct {
	Processed int `json:"processed"`
	Created   int `json:"created"`
	Failed    int `json:"failed"`
}

// Backfiller re-runs the generator over recent historical results, e.g.
// after a rule change or an outage that swallowed alert writes.
type Backfiller struct {
	gen    *Generator
	source ObservationSource
	logger zerolog.Logger
}

func NewBackfiller(gen *Generator, source ObservationSource, logger zerolog.Logger) *Backfiller {
	return &Backfiller{
		gen:    gen,
		source: source,
		logger: logger.With().Str("component", "alert_backfill").Logger(),
	}
}

// Run processes every candidate drawn on or after since. A failing
// observation is counted and logged; the batch continues. Only a failure to
// list candidates or a cancelled context aborts the run.
func (b *Backfiller) Run(ctx context.Context, since time.Time) (BackfillResult, error) {
	start := time.Now()
	defer func() { metrics.RecordBackfill(time.Since(start)) }()

	items, err := b.source.ListBackfillCandidates(ctx, since)
	if err != nil {
		return BackfillResult{}, fmt.Errorf("list backfill candidates: %w", err)
	}

	var res BackfillResult
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Processed++
		created, err := b.gen.GenerateAlerts(ctx, item.Observation, item.Patient)
		if err != nil {
			res.Failed++
			metrics.RecordGenerationFailure("backfill")
			b.logger.Error().Err(err).
				Str("observation_id", item.Observation.ID.String()).
				Str("patient_id", item.Patient.ID.String()).
				Msg("alert generation failed during backfill")
			continue
		}
		res.Created += len(created)
	}

	b.logger.Info().
		Time("since", since).
		Int("processed", res.Processed).
		Int("created", res.Created).
		Int("failed", res.Failed).
		Dur("took", time.Since(start)).
		Msg("alert backfill finished")
	return res, nil
}
