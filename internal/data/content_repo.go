package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/model"
)


// ContentRepo reads the content items the dashboard layer creates.
type ContentRepo struct {
	DB *sql.DB
}

// NewContentRepo creates a new ContentRepo.
func NewContentRepo(db *sql.DB) *ContentRepo {
	return &ContentRepo{DB: db}
}

// GetByID returns one content item.
func (r *ContentRepo) GetByID(ctx context.Context, id string) (*model.ContentItem, error) {
	var item model.ContentItem
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, business_id, caption, image_url
		FROM content_items
		WHERE id = $1
	`, id).Scan(&item.ID, &item.BusinessID, &item.Caption, &item.ImageURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrContentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get content: %w", err)
	}
	return &item, nil
}
