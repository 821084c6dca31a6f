package alerting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cmlcare/cml/internal/domain/response"
)

// failOnceRepo fails inserts for a single patient.
type failOnceRepo struct {
	*mockAlertRepo
	failFor uuid.UUID
}

func (r *failOnceRepo) Insert(ctx context.Context, d *AlertDraft) (*Alert, error) {
	if d.PatientID == r.failFor {
		return nil, errors.New("disk full")
	}
	return r.mockAlertRepo.Insert(ctx, d)
}

func backfillItem(diag, test time.Time, value float64) BackfillItem {
	pid := uuid.New()
	return BackfillItem{
		Observation: TestObservation{
			ID:        uuid.New(),
			PatientID: pid,
			TestDate:  test,
			TestType:  response.TestTypeBCRABL1,
			BCRABLIS:  ptrFloat(value),
		},
		Patient: Patient{ID: pid, DiagnosisDate: diag},
	}
}

func TestBackfiller_CountsFailuresAndContinues(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 7, 2, 9, 0, 0, 0, time.UTC)}
	items := []BackfillItem{
		backfillItem(date(2024, 1, 1), date(2024, 7, 1), 2.5),  // mutation alert
		backfillItem(date(2024, 1, 1), date(2024, 7, 1), 15),   // fails
		backfillItem(date(2024, 1, 1), date(2024, 2, 1), 50),   // too early
		backfillItem(date(2023, 1, 1), date(2024, 3, 1), 0.05), // GREEN, nothing
	}
	repo := &failOnceRepo{mockAlertRepo: newMockAlertRepo(clock.Now), failFor: items[1].Patient.ID}
	gen := NewGenerator(repo, DefaultDedupWindow, zerolog.Nop(), WithClock(clock.Now))
	src := &mockSource{items: items}
	b := NewBackfiller(gen, src, zerolog.Nop())

	since := date(2024, 3, 2)
	res, err := b.Run(context.Background(), since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !src.since.Equal(since) {
		t.Errorf("expected source queried with %s, got %s", since, src.since)
	}
	if res.Processed != 4 {
		t.Errorf("expected 4 processed, got %d", res.Processed)
	}
	if res.Failed != 1 {
		t.Errorf("expected 1 failure, got %d", res.Failed)
	}
	if res.Created != 1 {
		t.Errorf("expected 1 created alert, got %d", res.Created)
	}
}

func TestBackfiller_RerunIsDeduplicated(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 7, 2, 9, 0, 0, 0, time.UTC)}
	repo := newMockAlertRepo(clock.Now)
	gen := NewGenerator(repo, DefaultDedupWindow, zerolog.Nop(), WithClock(clock.Now))
	src := &mockSource{items: []BackfillItem{backfillItem(date(2024, 1, 1), date(2024, 7, 1), 15)}}
	b := NewBackfiller(gen, src, zerolog.Nop())

	first, err := b.Run(context.Background(), date(2024, 3, 2))
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := b.Run(context.Background(), date(2024, 3, 2))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first.Created != 2 || second.Created != 0 {
		t.Errorf("expected 2 then 0 created, got %d then %d", first.Created, second.Created)
	}
	if repo.inserts != 2 {
		t.Errorf("expected 2 inserts, got %d", repo.inserts)
	}
}

func TestBackfiller_ListErrorAborts(t *testing.T) {
	gen := NewGenerator(newMockAlertRepo(time.Now), DefaultDedupWindow, zerolog.Nop())
	b := NewBackfiller(gen, &mockSource{err: errors.New("connection refused")}, zerolog.Nop())

	if _, err := b.Run(context.Background(), time.Now()); err == nil {
		t.Fatal("expected error when candidates cannot be listed")
	}
}

func TestBackfiller_StopsOnCancelledContext(t *testing.T) {
	gen := NewGenerator(newMockAlertRepo(time.Now), DefaultDedupWindow, zerolog.Nop())
	src := &mockSource{items: []BackfillItem{backfillItem(date(2024, 1, 1), date(2024, 7, 1), 2.5)}}
	b := NewBackfiller(gen, src, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := b.Run(ctx, time.Now())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.Processed != 0 {
		t.Errorf("expected nothing processed, got %d", res.Processed)
	}
}
