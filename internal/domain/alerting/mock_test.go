package alerting

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ── Test clock ──

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// ── Mock Repository ──

type mockAlertRepo struct {
	mu        sync.Mutex
	data      map[uuid.UUID]*Alert
	clock     func() time.Time
	findErr   error
	insertErr error
	inserts   int
}

func newMockAlertRepo(clock func() time.Time) *mockAlertRepo {
	return &mockAlertRepo{data: make(map[uuid.UUID]*Alert), clock: clock}
}

func (m *mockAlertRepo) FindRecentUnresolved(_ context.Context, patientID uuid.UUID, alertType AlertType, since time.Time) (*Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	var newest *Alert
	for _, a := range m.data {
		if a.PatientID != patientID || a.AlertType != alertType || a.Resolved || a.CreatedAt.Before(since) {
			continue
		}
		if newest == nil || a.CreatedAt.After(newest.CreatedAt) {
			newest = a
		}
	}
	return newest, nil
}

func (m *mockAlertRepo) Insert(_ context.Context, d *AlertDraft) (*Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	a := &Alert{
		ID:        uuid.New(),
		PatientID: d.PatientID,
		AlertType: d.AlertType,
		Message:   d.Message,
		Severity:  d.Severity,
		CreatedAt: m.clock(),
	}
	m.data[a.ID] = a
	m.inserts++
	return a, nil
}

func (m *mockAlertRepo) GetByID(_ context.Context, id uuid.UUID) (*Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.data[id]; ok {
		return a, nil
	}
	return nil, ErrNotFound
}

func (m *mockAlertRepo) List(_ context.Context, f AlertFilter, limit, offset int) ([]*Alert, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Alert
	for _, a := range m.data {
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.Resolved != nil && a.Resolved != *f.Resolved {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *mockAlertRepo) Resolve(_ context.Context, id uuid.UUID, at time.Time) (*Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !a.Resolved {
		a.Resolved = true
		a.ResolvedAt = &at
	}
	return a, nil
}

func (m *mockAlertRepo) byType(t AlertType) []*Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Alert
	for _, a := range m.data {
		if a.AlertType == t {
			out = append(out, a)
		}
	}
	return out
}

// lockingRepo adds PatientLocker to the mock.
type lockingRepo struct {
	*mockAlertRepo
	locked []uuid.UUID
}

func (l *lockingRepo) WithPatientLock(ctx context.Context, patientID uuid.UUID, fn func(ctx context.Context) error) error {
	l.locked = append(l.locked, patientID)
	return fn(ctx)
}

// ── Mock Publisher ──

type mockPublisher struct {
	subjects []string
	err      error
}

func (p *mockPublisher) Publish(_ context.Context, subject string, _ interface{}) error {
	p.subjects = append(p.subjects, subject)
	return p.err
}

// ── Mock Observation Source ──

type mockSource struct {
	items []BackfillItem
	since time.Time
	err   error
}

func (s *mockSource) ListBackfillCandidates(_ context.Context, since time.Time) ([]BackfillItem, error) {
	s.since = since
	return s.items, s.err
}
