package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service backs the alert inbox: listing, resolving and the administrative
// backfill. Generation itself lives in Generator.
type Service struct {
	alerts         AlertRepository
	backfill       *Backfiller
	backfillMonths int
	now            func() time.Time
}

func NewService(alerts AlertRepository, backfill *Backfiller, backfillMonths int) *Service {
	return &Service{
		alerts:         alerts,
		backfill:       backfill,
		backfillMonths: backfillMonths,
		now:            time.Now,
	}
}

func (s *Service) GetAlert(ctx context.Context, id uuid.UUID) (*Alert, error) {
	return s.alerts.GetByID(ctx, id)
}

func (s *Service) ListAlerts(ctx context.Context, f AlertFilter, limit, offset int) ([]*Alert, int, error) {
	return s.alerts.List(ctx, f, limit, offset)
}

// ResolveAlert closes an alert. Resolution is one-way and repeated calls
// succeed without changing resolved_at.
func (s *Service) ResolveAlert(ctx context.Context, id uuid.UUID) (*Alert, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("id is required")
	}
	return s.alerts.Resolve(ctx, id, s.now())
}

// RunBackfill regenerates alerts for the configured look-back window.
func (s *Service) RunBackfill(ctx context.Context) (BackfillResult, error) {
	if s.backfill == nil {
		return BackfillResult{}, fmt.Errorf("backfill is not configured")
	}
	since := s.now().AddDate(0, -s.backfillMonths, 0)
	return s.backfill.Run(ctx, since)
}
