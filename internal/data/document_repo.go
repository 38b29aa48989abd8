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

const researchDocumentColumns = `
  id,
  job_id,
  url,
  title,
  content,
  scrape_error,
  created_at
`

// DocumentRepo stores scraped page documents for research jobs.
type DocumentRepo struct {
	DB *sql.DB
}

// NewDocumentRepo creates a new DocumentRepo.
func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{DB: db}
}

// Insert persists a scraped document. Failed scrapes are recorded too, with
// scrape_error set, so the reasoner knows which sources were skipped.
func (r *DocumentRepo) Insert(
	ctx context.Context,
	doc *model.ResearchDocument,
) (*model.ResearchDocument, error) {
	var out *model.ResearchDocument
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `
			INSERT INTO research_documents (job_id, url, title, content, scrape_error)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+researchDocumentColumns,
			doc.JobID, doc.URL, doc.Title, doc.Content, doc.ScrapeErr)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		d, cerr := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[model.ResearchDocument])
		if cerr != nil {
			return cerr
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("insert research document: %w", apperrors.MapDBError(err))
	}
	return out, nil
}

// DeleteByJob removes a job's documents. The scrape stage clears prior
// rows before re-scraping so a lease-expiry redelivery cannot double the
// document set.
func (r *DocumentRepo) DeleteByJob(ctx context.Context, jobID string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM research_documents WHERE job_id = $1
	`, jobID)
	if err != nil {
		return 0, fmt.Errorf("delete research documents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete research documents: %w", err)
	}
	return n, nil
}

// ListByJob returns a job's documents in insertion order.
func (r *DocumentRepo) ListByJob(ctx context.Context, jobID string) ([]model.ResearchDocument, error) {
	var docs []model.ResearchDocument
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `
			SELECT `+researchDocumentColumns+`
			FROM research_documents
			WHERE job_id = $1
			ORDER BY created_at ASC, id ASC
		`, jobID)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		ds, cerr := pgx.CollectRows(rows, pgx.RowToStructByName[model.ResearchDocument])
		if cerr != nil {
			return cerr
		}
		docs = ds
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list research documents: %w", err)
	}
	return docs, nil
}
