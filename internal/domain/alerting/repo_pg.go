package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cmlcare/cml/internal/domain/response"
	"github.com/cmlcare/cml/internal/platform/db"
)

// =========== Alert Repository ===========

type alertRepoPG struct{ pool *pgxpool.Pool }

func NewAlertRepoPG(pool *pgxpool.Pool) AlertRepository { return &alertRepoPG{pool: pool} }

const alertCols = `id, patient_id, alert_type, message, severity, resolved, resolved_at, created_at`

func scanAlert(row pgx.Row) (*Alert, error) {
	var a Alert
	err := row.Scan(&a.ID, &a.PatientID, &a.AlertType, &a.Message, &a.Severity, &a.Resolved, &a.ResolvedAt, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *alertRepoPG) FindRecentUnresolved(ctx context.Context, patientID uuid.UUID, alertType AlertType, since time.Time) (*Alert, error) {
	a, err := scanAlert(db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+alertCols+` FROM alerts
		WHERE patient_id = $1 AND alert_type = $2 AND NOT resolved AND created_at >= $3
		ORDER BY created_at DESC LIMIT 1`,
		patientID, alertType, since))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return a, err
}

func (r *alertRepoPG) Insert(ctx context.Context, d *AlertDraft) (*Alert, error) {
	return scanAlert(db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO alerts (id, patient_id, alert_type, message, severity, resolved)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		RETURNING `+alertCols,
		uuid.New(), d.PatientID, d.AlertType, d.Message, d.Severity))
}

// WithPatientLock holds a transaction-scoped advisory lock for the patient
// so the dedup check and insert cannot interleave with another writer.
func (r *alertRepoPG) WithPatientLock(ctx context.Context, patientID uuid.UUID, fn func(ctx context.Context) error) error {
	return db.WithAdvisoryLock(ctx, r.pool, "alerts:"+patientID.String(), fn)
}

func (r *alertRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Alert, error) {
	return scanAlert(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+alertCols+` FROM alerts WHERE id = $1`, id))
}

func (r *alertRepoPG) List(ctx context.Context, f AlertFilter, limit, offset int) ([]*Alert, int, error) {
	where, args := filterClause(f)

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM alerts`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		fmt.Sprintf(`SELECT %s FROM alerts%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
			alertCols, where, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func filterClause(f AlertFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	if f.PatientID != nil {
		args = append(args, *f.PatientID)
		conds = append(conds, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if f.Resolved != nil {
		args = append(args, *f.Resolved)
		conds = append(conds, fmt.Sprintf("resolved = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *alertRepoPG) Resolve(ctx context.Context, id uuid.UUID, at time.Time) (*Alert, error) {
	return scanAlert(db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE alerts SET resolved = TRUE, resolved_at = COALESCE(resolved_at, $2)
		WHERE id = $1
		RETURNING `+alertCols,
		id, at))
}

// =========== Backfill Source ===========

type observationSourcePG struct{ pool *pgxpool.Pool }

func NewObservationSourcePG(pool *pgxpool.Pool) ObservationSource {
	return &observationSourcePG{pool: pool}
}

func (s *observationSourcePG) ListBackfillCandidates(ctx context.Context, since time.Time) ([]BackfillItem, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx, `
		SELECT t.id, t.patient_id, t.test_date, t.test_type, t.bcr_abl_is, p.diagnosis_date
		FROM test_results t
		JOIN patients p ON p.id = t.patient_id
		WHERE t.test_type = $1 AND t.bcr_abl_is IS NOT NULL AND t.test_date >= $2
		ORDER BY t.test_date, t.created_at`,
		response.TestTypeBCRABL1, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []BackfillItem
	for rows.Next() {
		var it BackfillItem
		if err := rows.Scan(&it.Observation.ID, &it.Observation.PatientID, &it.Observation.TestDate,
			&it.Observation.TestType, &it.Observation.BCRABLIS, &it.Patient.DiagnosisDate); err != nil {
			return nil, err
		}
		it.Patient.ID = it.Observation.PatientID
		items = append(items, it)
	}
	return items, rows.Err()
}
