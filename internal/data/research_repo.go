package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/core"
	apperrors "github.com/Shillsphere/market-peak-pilot-sub000/internal/errors"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/data/pgxutil"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/model"
)


const researchJobColumns = `
  id,
  business_id,
  user_id,
  topic,
  source_urls,
  status,
  stage,
  started_at,
  finished_at,
  result,
  cost_usd,
  error_message,
  lease_expires_at,
  created_at,
  updated_at
`

// The pipeline runs as two logical queues over one table. The stage column
// selects the queue; each stage has its own notify channel so scraper and
// reasoner workers only wake for their own work.
func researchNotifyChannel(stage model.ResearchStage) string {
	return "research_" + string(stage) + "_job_added"
}

// stageRunningStatus maps a queue stage to the status a reserved job enters.
func stageRunningStatus(stage model.ResearchStage) model.ResearchStatus {
	if stage == model.StageReason {
		return model.ResearchReasoning
	}
	return model.ResearchScraping
}

const reserveResearchSQL = `
  WITH cte AS (
    SELECT id FROM research_jobs
    WHERE status = 'queued' AND stage = $1
    ORDER BY created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE research_jobs j
  SET status = $2,
      started_at = COALESCE(j.started_at, $3),
      lease_expires_at = $4,
      updated_at = $3
  FROM cte
  WHERE j.id = cte.id
  RETURNING j.id, j.business_id, j.user_id, j.topic, j.source_urls, j.status, j.stage, j.started_at, j.finished_at, j.result, j.cost_usd, j.error_message, j.lease_expires_at, j.created_at, j.updated_at`

// ResearchRepo provides database operations for the research pipeline.
type ResearchRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// ResearchRepoConfig holds optional configuration for ResearchRepo.
type ResearchRepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// NewResearchRepo creates a new ResearchRepo.
func NewResearchRepo(db *sql.DB, cfg ResearchRepoConfig) *ResearchRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &ResearchRepo{DB: db, timeProvider: tp, logger: cfg.Logger}
}

// Create inserts a queued scrape-stage job and notifies scraper workers in
// the same transaction.
func (r *ResearchRepo) Create(
	ctx context.Context,
	p *model.CreateResearchJobParams,
) (*model.ResearchJob, error) {
	if p == nil {
		return nil, errors.New("create research job params are required")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var job *model.ResearchJob
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			rows, qerr := tx.Query(ctx, `
				INSERT INTO research_jobs (business_id, user_id, topic, source_urls, status, stage)
				VALUES ($1, $2, $3, $4, 'queued', 'scrape')
				RETURNING `+researchJobColumns,
				p.BusinessID, p.UserID, p.Topic, p.SourceURLs)
			if qerr != nil {
				return fmt.Errorf("insert research job: %w", apperrors.MapDBError(qerr))
			}
			defer rows.Close()

			j, cerr := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[model.ResearchJob])
			if cerr != nil {
				return fmt.Errorf("collect research job: %w", cerr)
			}
			job = j

			if _, nerr := tx.Exec(ctx,
				`SELECT pg_notify($1::text, $2::text)`,
				researchNotifyChannel(model.StageScrape), job.ID); nerr != nil {
				return fmt.Errorf("send job notification: %w", nerr)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// GetByID retrieves a research job by id.
func (r *ResearchRepo) GetByID(ctx context.Context, id string) (*model.ResearchJob, error) {
	var job *model.ResearchJob
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `
			SELECT `+researchJobColumns+`
			FROM research_jobs
			WHERE id = $1
		`, id)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		j, cerr := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[model.ResearchJob])
		if cerr != nil {
			return cerr
		}
		job = j
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrResearchJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get research job: %w", err)
	}
	return job, nil
}

// ReserveNext atomically claims the oldest queued job of the given stage
// and moves it to the stage's running status under a lease.
func (r *ResearchRepo) ReserveNext(
	ctx context.Context,
	stage model.ResearchStage,
	lease time.Duration,
) (*model.ResearchJob, error) {
	if _, err := r.RequeueExpired(ctx); err != nil {
		return nil, fmt.Errorf("requeue expired jobs: %w", err)
	}

	var job *model.ResearchJob
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		Fn: func(tx pgx.Tx) error {
			now := r.timeProvider.Now().UTC()
			rows, qerr := tx.Query(ctx, reserveResearchSQL,
				stage, stageRunningStatus(stage), now, now.Add(lease))
			if qerr != nil {
				return fmt.Errorf("reserve research job: %w", qerr)
			}
			defer rows.Close()

			j, cerr := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[model.ResearchJob])
			if errors.Is(cerr, pgx.ErrNoRows) {
				return model.ErrNoJobsAvailable
			}
			if cerr != nil {
				return fmt.Errorf("reserve research job: %w", cerr)
			}
			job = j
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, model.ErrNoJobsAvailable
		}
		return nil, err
	}
	return job, nil
}

// AdvanceToReason moves a scraping job onto the reason queue and notifies
// reasoner workers. The status guard keeps a stale redelivery from moving
// a job that already advanced.
func (r *ResearchRepo) AdvanceToReason(ctx context.Context, id string) (bool, error) {
	var advanced bool
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			tag, uerr := tx.Exec(ctx, `
				UPDATE research_jobs
				SET status = 'queued',
				    stage = 'reason',
				    lease_expires_at = NULL,
				    updated_at = $2
				WHERE id = $1 AND status = 'scraping'
			`, id, r.timeProvider.Now().UTC())
			if uerr != nil {
				return fmt.Errorf("advance research job: %w", uerr)
			}
			if tag.RowsAffected() == 0 {
				return nil
			}
			advanced = true
			if _, nerr := tx.Exec(ctx,
				`SELECT pg_notify($1::text, $2::text)`,
				researchNotifyChannel(model.StageReason), id); nerr != nil {
				return fmt.Errorf("send job notification: %w", nerr)
			}
			return nil
		},
	})
	if err != nil {
		return false, err
	}
	return advanced, nil
}

// Complete records the final result and cost for a reasoning job.
func (r *ResearchRepo) Complete(ctx context.Context, p *core.CompleteResearchParams) (bool, error) {
	if p == nil {
		return false, errors.New("complete research params are required")
	}
	resultJSON, err := json.Marshal(p.Result)
	if err != nil {
		return false, fmt.Errorf("marshal research result: %w", err)
	}

	res, err := r.DB.ExecContext(ctx, `
		UPDATE research_jobs
		SET status = 'completed',
		    result = $2,
		    cost_usd = $3,
		    finished_at = $4,
		    lease_expires_at = NULL,
		    updated_at = $4
		WHERE id = $1 AND status = 'reasoning'
	`, p.ID, resultJSON, p.CostUSD, r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("complete research job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete research job: %w", err)
	}
	return n > 0, nil
}

// MarkError records a terminal pipeline failure. Any non-terminal job may
// fail; completed and already-errored jobs stay frozen.
func (r *ResearchRepo) MarkError(ctx context.Context, id, errMsg string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE research_jobs
		SET status = 'error',
		    error_message = $2,
		    finished_at = $3,
		    lease_expires_at = NULL,
		    updated_at = $3
		WHERE id = $1 AND status NOT IN ('completed', 'error')
	`, id, errMsg, r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark research job error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark research job error: %w", err)
	}
	return n > 0, nil
}

// RequeueExpired returns in-flight jobs with expired leases to their
// stage's queue so a crashed worker's jobs get redelivered.
func (r *ResearchRepo) RequeueExpired(ctx context.Context) (int64, error) {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE research_jobs
		SET status = 'queued',
		    lease_expires_at = NULL,
		    updated_at = $1
		WHERE status IN ('scraping', 'reasoning')
		  AND lease_expires_at IS NOT NULL AND lease_expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("requeue expired research jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("requeue expired research jobs: %w", err)
	}
	if n > 0 && r.logger != nil {
		r.logger.WarnContext(ctx, "requeued expired research jobs", "count", n)
	}
	return n, nil
}

// WaitForNotification blocks until new work arrives on the given stage's
// queue.
func (r *ResearchRepo) WaitForNotification(ctx context.Context, stage model.ResearchStage) error {
	return waitForPgNotification(ctx, r.DB, researchNotifyChannel(stage))
}
