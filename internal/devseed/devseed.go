// Package devseed populates a development database with demo data so the
// dispatcher and research pipeline can be exercised without manual setup.
package devseed

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/data"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/data/cryptoutil"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/model"
)

// DemoBusinessID is the business every seeded record belongs to.
const DemoBusinessID = "demo-business"

// Services bundles the dependencies needed for development seeding.
type Services struct {
	DB          *sql.DB
	credentials *data.CredentialRepo
}

// NewServices constructs the repositories used for seeding over the provided DB.
func NewServices(db *sql.DB, vault *cryptoutil.Vault) Services {
	return Services{
		DB:          db,
		credentials: data.NewCredentialRepo(db, vault),
	}
}

// Run executes the full development seeding workflow against the provided DB.
func Run(ctx context.Context, svcs Services, logger *slog.Logger) error {
	failures := seedCredentials(ctx, svcs.credentials, logger)
	if err := seedContent(ctx, svcs.DB, logger); err != nil {
		return err
	}
	if failures > 0 {
		return fmt.Errorf("%d seed errors; check logs", failures)
	}
	return nil
}

func seedCredentials(ctx context.Context, repo *data.CredentialRepo, logger *slog.Logger) int {
	failures := 0
	for _, req := range defaultCredentials() {
		created, err := repo.Save(ctx, req)
		if err != nil {
			if logger != nil {
				logger.ErrorContext(ctx, "failed to seed credential", "channel", req.Channel, "error", err)
			}
			failures++
			continue
		}
		if logger != nil {
			msg := "replaced existing credential"
			if created {
				msg = "created credential"
			}
			logger.InfoContext(ctx, msg, "business_id", req.BusinessID, "channel", req.Channel)
		}
	}
	return failures
}

func defaultCredentials() []model.SaveCredentialRequest {
	return []model.SaveCredentialRequest{
		{
			BusinessID: DemoBusinessID,
			Channel:    model.ChannelSocial,
			Fields: model.CredentialFields{
				"access_token":  "dev-social-access-token",
				"refresh_token": "dev-social-refresh-token",
			},
		},
		{
			BusinessID: DemoBusinessID,
			Channel:    model.ChannelBusinessListing,
			Fields: model.CredentialFields{
				"api_key":     "dev-listing-api-key",
				"location_id": "locations/1234567890",
			},
		},
		{
			BusinessID: DemoBusinessID,
			Channel:    model.ChannelSMS,
			Fields: model.CredentialFields{
				"account_sid": "ACdev00000000000000000000000000000",
				"auth_token":  "dev-sms-auth-token",
				"from_number": "+15005550006",
			},
		},
		{
			BusinessID: DemoBusinessID,
			Channel:    model.ChannelEmail,
			Fields: model.CredentialFields{
				"api_key":    "SG.dev-email-api-key",
				"from_email": "hello@demo-business.example.com",
			},
		},
		{
			BusinessID: DemoBusinessID,
			Channel:    model.ChannelGroupNotify,
			Fields: model.CredentialFields{
				"access_token": "dev-group-access-token",
				"group_ids":    "grp-101,grp-202",
			},
		},
	}
}

// seedContent inserts demo content items the first time the demo business is
// seeded. Re-runs leave existing content untouched.
func seedContent(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	var existing int
	if err := db.QueryRowContext(ctx,
		`SELECT count(*) FROM content_items WHERE business_id = $1`,
		DemoBusinessID,
	).Scan(&existing); err != nil {
		return fmt.Errorf("count seeded content: %w", err)
	}
	if existing > 0 {
		if logger != nil {
			logger.InfoContext(ctx, "content already seeded", "business_id", DemoBusinessID, "count", existing)
		}
		return nil
	}

	items := []struct {
		caption  string
		imageURL string
	}{
		{
			caption:  "Grand opening this Saturday! Stop by for live music and free samples.",
			imageURL: "https://cdn.example.com/demo/grand-opening.jpg",
		},
		{
			caption:  "New fall menu just dropped. Pumpkin everything, you have been warned.",
			imageURL: "https://cdn.example.com/demo/fall-menu.jpg",
		},
		{
			caption: "We are hiring! Come join the friendliest crew in town.",
		},
	}

	for _, item := range items {
		var imageURL *string
		if item.imageURL != "" {
			imageURL = &item.imageURL
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO content_items (business_id, caption, image_url) VALUES ($1, $2, $3)`,
			DemoBusinessID, item.caption, imageURL,
		); err != nil {
			return fmt.Errorf("insert seed content: %w", err)
		}
	}
	if logger != nil {
		logger.InfoContext(ctx, "seeded demo content", "business_id", DemoBusinessID, "count", len(items))
	}
	return nil
}
