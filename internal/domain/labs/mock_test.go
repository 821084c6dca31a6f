package labs

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/cmlcare/cml/internal/domain/alerting"
)

// ── Mock Patient Repository ──

type mockPatientRepo struct {
	data map[uuid.UUID]*Patient
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{data: make(map[uuid.UUID]*Patient)}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	m.data[p.ID] = p
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

// ── Mock Test Result Repository ──

type mockResultRepo struct {
	data      []*TestResult
	createErr error
}

func (m *mockResultRepo) Create(_ context.Context, r *TestResult) error {
	if m.createErr != nil {
		return m.createErr
	}
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	m.data = append(m.data, r)
	return nil
}

func (m *mockResultRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*TestResult, int, error) {
	var out []*TestResult
	for _, r := range m.data {
		if r.PatientID == patientID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TestDate.After(out[j].TestDate) })
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

// ── In-memory alert store ──

type memAlertStore struct {
	alerts []*alerting.Alert
}

func (s *memAlertStore) FindRecentUnresolved(_ context.Context, patientID uuid.UUID, t alerting.AlertType, since time.Time) (*alerting.Alert, error) {
	for _, a := range s.alerts {
		if a.PatientID == patientID && a.AlertType == t && !a.Resolved && !a.CreatedAt.Before(since) {
			return a, nil
		}
	}
	return nil, nil
}

func (s *memAlertStore) Insert(_ context.Context, d *alerting.AlertDraft) (*alerting.Alert, error) {
	a := &alerting.Alert{
		ID:        uuid.New(),
		PatientID: d.PatientID,
		AlertType: d.AlertType,
		Message:   d.Message,
		Severity:  d.Severity,
		CreatedAt: time.Now(),
	}
	s.alerts = append(s.alerts, a)
	return a, nil
}

// ── Failing generator ──

type failingGenerator struct{ calls int }

func (g *failingGenerator) GenerateAlerts(context.Context, alerting.TestObservation, alerting.Patient) ([]*alerting.Alert, error) {
	g.calls++
	return nil, errors.New("alerts table unavailable")
}
