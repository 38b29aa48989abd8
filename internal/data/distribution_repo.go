package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	apperrors "github.com/Shillsphere/market-peak-pilot-sub000/internal/errors"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/data/pgxutil"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/model"
)


const distributionNotifyChannel = "distribution_job_added"

const distributionJobColumns = `
  id,
  business_id,
  content_id,
  channel,
  status,
  scheduled_at,
  payload,
  external_id,
  error_message,
  lease_expires_at,
  created_at,
  updated_at
`

// SQL used by ReserveNext to atomically claim the next eligible job.
// Delayed jobs stay invisible until scheduled_at passes; the queue holds
// them without a separate timer.
const reserveDistributionSQL = `
  WITH cte AS (
    SELECT id FROM distribution_jobs
    WHERE status = 'queued' AND scheduled_at <= $1
    ORDER BY scheduled_at ASC, created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE distribution_jobs j
  SET status = 'running',
      lease_expires_at = $2,
      updated_at = $3
  FROM cte
  WHERE j.id = cte.id
  RETURNING j.id, j.business_id, j.content_id, j.channel, j.status, j.scheduled_at, j.payload, j.external_id, j.error_message, j.lease_expires_at, j.created_at, j.updated_at`

// DistributionRepo provides database operations for the distribution queue.
type DistributionRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// DistributionRepoConfig holds optional configuration for DistributionRepo.
type DistributionRepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// NewDistributionRepo creates a new DistributionRepo.
func NewDistributionRepo(db *sql.DB, cfg DistributionRepoConfig) *DistributionRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &DistributionRepo{DB: db, timeProvider: tp, logger: cfg.Logger}
}

// Create inserts a queued job row and sends the wakeup notification in the
// same transaction, so the durable row always precedes the notification.
func (r *DistributionRepo) Create(
	ctx context.Context,
	p *model.CreateDistributionJobParams,
) (*model.DistributionJob, error) {
	if p == nil {
		return nil, errors.New("create distribution job params are required")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	scheduledAt := p.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = r.timeProvider.Now()
	}

	var job *model.DistributionJob
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			rows, qerr := tx.Query(ctx, `
				INSERT INTO distribution_jobs (business_id, content_id, channel, status, scheduled_at, payload)
				VALUES ($1, $2, $3, 'queued', $4, $5)
				RETURNING `+distributionJobColumns,
				p.BusinessID, p.ContentID, p.Channel, scheduledAt.UTC(), p.Payload)
			if qerr != nil {
				return fmt.Errorf("insert job: %w", apperrors.MapDBError(qerr))
			}
			defer rows.Close()

			j, cerr := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[model.DistributionJob])
			if cerr != nil {
				return fmt.Errorf("collect job: %w", cerr)
			}
			job = j

			if _, nerr := tx.Exec(ctx,
				`SELECT pg_notify($1::text, $2::text)`, distributionNotifyChannel, job.ID); nerr != nil {
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

// GetByID retrieves a distribution job by id.
func (r *DistributionRepo) GetByID(ctx context.Context, id string) (*model.DistributionJob, error) {
	var job *model.DistributionJob
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `
			SELECT `+distributionJobColumns+`
			FROM distribution_jobs
			WHERE id = $1
		`, id)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		j, cerr := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[model.DistributionJob])
		if cerr != nil {
			return cerr
		}
		job = j
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrDistributionJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get distribution job: %w", err)
	}
	return job, nil
}

// ReserveNext atomically claims the oldest eligible queued job and moves it
// to running under a lease. Returns model.ErrNoJobsAvailable when nothing
// is eligible.
func (r *DistributionRepo) ReserveNext(ctx context.Context, lease time.Duration) (*model.DistributionJob, error) {
	if _, err := r.RequeueExpired(ctx); err != nil {
		return nil, fmt.Errorf("requeue expired jobs: %w", err)
	}

	var job *model.DistributionJob
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		Fn: func(tx pgx.Tx) error {
			now := r.timeProvider.Now().UTC()
			rows, qerr := tx.Query(ctx, reserveDistributionSQL, now, now.Add(lease), now)
			if qerr != nil {
				return fmt.Errorf("reserve job: %w", qerr)
			}
			defer rows.Close()

			j, cerr := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[model.DistributionJob])
			if errors.Is(cerr, pgx.ErrNoRows) {
				return model.ErrNoJobsAvailable
			}
			if cerr != nil {
				return fmt.Errorf("reserve job: %w", cerr)
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

// MarkSuccess records a successful delivery. The status guard makes the
// write idempotent under redelivery: only a running job changes.
func (r *DistributionRepo) MarkSuccess(ctx context.Context, id, externalID string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE distribution_jobs
		SET status = 'success',
		    external_id = $2,
		    error_message = NULL,
		    lease_expires_at = NULL,
		    updated_at = $3
		WHERE id = $1 AND status = 'running'
	`, id, externalID, r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark job success: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark job success: %w", err)
	}
	return n > 0, nil
}

// MarkError records a terminal delivery failure under the same guard.
func (r *DistributionRepo) MarkError(ctx context.Context, id, errMsg string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE distribution_jobs
		SET status = 'error',
		    error_message = $2,
		    lease_expires_at = NULL,
		    updated_at = $3
		WHERE id = $1 AND status = 'running'
	`, id, errMsg, r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark job error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark job error: %w", err)
	}
	return n > 0, nil
}

// RequeueExpired returns running jobs whose lease expired to the queue so a
// crashed worker's jobs get redelivered (at-least-once).
func (r *DistributionRepo) RequeueExpired(ctx context.Context) (int64, error) {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE distribution_jobs
		SET status = 'queued',
		    lease_expires_at = NULL,
		    updated_at = $1
		WHERE status = 'running' AND lease_expires_at IS NOT NULL AND lease_expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("requeue expired distribution jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("requeue expired distribution jobs: %w", err)
	}
	if n > 0 && r.logger != nil {
		r.logger.WarnContext(ctx, "requeued expired distribution jobs", "count", n)
	}
	return n, nil
}

// WaitForNotification blocks until a LISTEN notification signals new work.
func (r *DistributionRepo) WaitForNotification(ctx context.Context) error {
	return waitForPgNotification(ctx, r.DB, distributionNotifyChannel)
}

// waitForPgNotification LISTENs on the given channel using a dedicated pool
// connection and blocks until a notification or context cancellation.
func waitForPgNotification(ctx context.Context, db *sql.DB, channel string) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	quoted := pgx.Identifier{channel}.Sanitize()
	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", channel, execErr)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "UNLISTEN "+quoted)
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}
