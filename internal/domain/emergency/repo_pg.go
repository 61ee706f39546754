package emergency

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contactRepoPG struct{ pool *pgxpool.Pool }

func NewContactRepoPG(pool *pgxpool.Pool) ContactRepository {
	return &contactRepoPG{pool: pool}
}

func (r *contactRepoPG) Create(ctx context.Context, c *Contact) error {
	c.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO emergency_contact (id, patient_id, name, channel, address)
		VALUES ($1,$2,$3,$4,$5)`,
		c.ID, c.PatientID, c.Name, c.Channel, c.Address)
	return err
}

func (r *contactRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM emergency_contact WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("contact not found")
	}
	return nil
}

func (r *contactRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Contact, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, patient_id, name, channel, address, created_at
		FROM emergency_contact WHERE patient_id = $1 ORDER BY created_at`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.PatientID, &c.Name, &c.Channel, &c.Address, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

type eventRepoPG struct{ pool *pgxpool.Pool }

func NewEventRepoPG(pool *pgxpool.Pool) EventRepository {
	return &eventRepoPG{pool: pool}
}

func (r *eventRepoPG) Append(ctx context.Context, e *Event) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	outcomes, err := json.Marshal(e.Outcomes)
	if err != nil {
		return fmt.Errorf("encode outcomes: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO emergency_event (id, patient_id, reason, medications, detail, occurred_at, outcomes)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.PatientID, e.Reason, e.Medications, e.Detail, e.OccurredAt, outcomes)
	return err
}

func (r *eventRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Event, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM emergency_event WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, patient_id, reason, medications, detail, occurred_at, outcomes
		FROM emergency_event WHERE patient_id = $1
		ORDER BY occurred_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var e Event
		var outcomes []byte
		if err := rows.Scan(&e.ID, &e.PatientID, &e.Reason, &e.Medications, &e.Detail, &e.OccurredAt, &outcomes); err != nil {
			return nil, 0, err
		}
		if err := json.Unmarshal(outcomes, &e.Outcomes); err != nil {
			return nil, 0, fmt.Errorf("decode outcomes: %w", err)
		}
		out = append(out, &e)
	}
	return out, total, rows.Err()
}
