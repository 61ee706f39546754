package medication

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// =========== Medication Repository ===========

type medicationRepoPG struct{ pool *pgxpool.Pool }

func NewMedicationRepoPG(pool *pgxpool.Pool) MedicationRepository {
	return &medicationRepoPG{pool: pool}
}

const medCols = `id, patient_id, name, dosage_amount, dosage_unit, critical, schedule, created_at, updated_at`

func (r *medicationRepoPG) scanMed(row pgx.Row) (*Medication, error) {
	var m Medication
	var sched []byte
	err := row.Scan(&m.ID, &m.PatientID, &m.Name, &m.DosageAmount, &m.DosageUnit,
		&m.Critical, &sched, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(sched, &m.Schedule); err != nil {
		return nil, fmt.Errorf("decode schedule: %w", err)
	}
	return &m, nil
}

func (r *medicationRepoPG) Create(ctx context.Context, m *Medication) error {
	m.ID = uuid.New()
	sched, err := json.Marshal(m.Schedule)
	if err != nil {
		return fmt.Errorf("encode schedule: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO medication (id, patient_id, name, dosage_amount, dosage_unit, critical, schedule)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		m.ID, m.PatientID, m.Name, m.DosageAmount, m.DosageUnit, m.Critical, sched)
	return err
}

func (r *medicationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Medication, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+medCols+` FROM medication WHERE id = $1`, id)
	return r.scanMed(row)
}

func (r *medicationRepoPG) Update(ctx context.Context, m *Medication) error {
	sched, err := json.Marshal(m.Schedule)
	if err != nil {
		return fmt.Errorf("encode schedule: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE medication
		SET name=$2, dosage_amount=$3, dosage_unit=$4, critical=$5, schedule=$6, updated_at=NOW()
		WHERE id=$1`,
		m.ID, m.Name, m.DosageAmount, m.DosageUnit, m.Critical, sched)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *medicationRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM medication WHERE id = $1`, id)
	return err
}

func (r *medicationRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Medication, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+medCols+` FROM medication WHERE patient_id = $1 ORDER BY created_at`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Medication
	for rows.Next() {
		m, err := r.scanMed(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// =========== Dose Log Repository ===========

type doseLogRepoPG struct{ pool *pgxpool.Pool }

func NewDoseLogRepoPG(pool *pgxpool.Pool) DoseLogRepository {
	return &doseLogRepoPG{pool: pool}
}

const doseCols = `id, medication_id, patient_id, taken_at, status, created_at`

func (r *doseLogRepoPG) Append(ctx context.Context, e *DoseLogEntry) error {
	e.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO dose_log (id, medication_id, patient_id, taken_at, status)
		VALUES ($1,$2,$3,$4,$5)`,
		e.ID, e.MedicationID, e.PatientID, e.TakenAt, e.Status)
	return err
}

func (r *doseLogRepoPG) LastTaken(ctx context.Context, medicationID uuid.UUID) (*DoseLogEntry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+doseCols+` FROM dose_log
		WHERE medication_id = $1 AND status = $2
		ORDER BY taken_at DESC LIMIT 1`,
		medicationID, DoseTaken)
	var e DoseLogEntry
	err := row.Scan(&e.ID, &e.MedicationID, &e.PatientID, &e.TakenAt, &e.Status, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *doseLogRepoPG) CountTakenBetween(ctx context.Context, medicationID uuid.UUID, from, to time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM dose_log
		WHERE medication_id = $1 AND status = $2 AND taken_at >= $3 AND taken_at < $4`,
		medicationID, DoseTaken, from, to).Scan(&n)
	return n, err
}

func (r *doseLogRepoPG) ListByMedication(ctx context.Context, medicationID uuid.UUID, limit, offset int) ([]*DoseLogEntry, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dose_log WHERE medication_id = $1`, medicationID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+doseCols+` FROM dose_log
		WHERE medication_id = $1
		ORDER BY taken_at DESC LIMIT $2 OFFSET $3`,
		medicationID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*DoseLogEntry
	for rows.Next() {
		var e DoseLogEntry
		if err := rows.Scan(&e.ID, &e.MedicationID, &e.PatientID, &e.TakenAt, &e.Status, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, &e)
	}
	return out, total, rows.Err()
}
