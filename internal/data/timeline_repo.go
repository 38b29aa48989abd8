package data

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/Shillsphere/market-peak-pilot-sub000/internal/errors"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/data/pgxutil"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/model"
)

// TimelineRepo persists research stage events in order.
type TimelineRepo struct {
	DB *sql.DB
}

// NewTimelineRepo creates a new TimelineRepo.
func NewTimelineRepo(db *sql.DB) *TimelineRepo {
	return &TimelineRepo{DB: db}
}

// Append stores one stage event.
func (r *TimelineRepo) Append(ctx context.Context, ev *model.StageEvent) error {
	ts := ev.Timestamp
	var tsArg any = ts
	if ts.IsZero() {
		tsArg = nil
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO research_timeline (job_id, step, note, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.JobID, ev.Step, ev.Note, ev.Payload, tsArg)
	if err != nil {
		return fmt.Errorf("append timeline event: %w", apperrors.MapDBError(err))
	}
	return nil
}

// ListByJob returns a job's timeline in emission order.
func (r *TimelineRepo) ListByJob(ctx context.Context, jobID string) ([]model.StageEvent, error) {
	var events []model.StageEvent
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `
			SELECT job_id, step, note, payload, created_at
			FROM research_timeline
			WHERE job_id = $1
			ORDER BY created_at ASC, id ASC
		`, jobID)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		evs, cerr := pgx.CollectRows(rows, pgx.RowToStructByName[model.StageEvent])
		if cerr != nil {
			return cerr
		}
		events = evs
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list timeline events: %w", err)
	}
	return events, nil
}
