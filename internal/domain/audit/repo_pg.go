package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type entryRepoPG struct{ pool *pgxpool.Pool }

func NewEntryRepoPG(pool *pgxpool.Pool) EntryRepository {
	return &entryRepoPG{pool: pool}
}

func (r *entryRepoPG) Append(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_entry (id, timestamp, actor, action, subject_ids, outcome, evidence)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.Timestamp, e.Actor, e.Action, e.SubjectIDs, e.Outcome, e.Evidence)
	return err
}

func (r *entryRepoPG) Search(ctx context.Context, action, subjectID string, limit, offset int) ([]*Entry, int, error) {
	where := `WHERE ($1 = '' OR action = $1) AND ($2 = '' OR $2 = ANY(subject_ids))`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_entry `+where, action, subjectID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, timestamp, actor, action, subject_ids, outcome, evidence
		FROM audit_entry `+where+`
		ORDER BY timestamp DESC LIMIT $3 OFFSET $4`,
		action, subjectID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Actor, &e.Action, &e.SubjectIDs, &e.Outcome, &e.Evidence); err != nil {
			return nil, 0, err
		}
		out = append(out, &e)
	}
	return out, total, rows.Err()
}
