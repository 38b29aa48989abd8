package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/data/cryptoutil"
	apperrors "github.com/Shillsphere/market-peak-pilot-sub000/internal/errors"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/data/pgxutil"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/model"
)

// CredentialRepo provides CRUD operations for channel credentials with
// at-rest encryption. Plaintext payloads exist only between the vault
// boundary and the caller; the database sees ciphertext only.
type CredentialRepo struct {
	DB    *sql.DB
	Vault *cryptoutil.Vault
}

// NewCredentialRepo creates a new CredentialRepo.
func NewCredentialRepo(db *sql.DB, vault *cryptoutil.Vault) *CredentialRepo {
	return &CredentialRepo{DB: db, Vault: vault}
}

// Save encrypts the payload and upserts the (business, channel) record.
// Resubmission overwrites in place; the unique key guarantees one row per
// pair. Returns true when a new record was created.
func (r *CredentialRepo) Save(ctx context.Context, req model.SaveCredentialRequest) (bool, error) {
	if err := req.Validate(); err != nil {
		return false, err
	}

	plaintext, err := json.Marshal(req.Fields)
	if err != nil {
		return false, fmt.Errorf("encode credential payload: %w", err)
	}
	cipher, err := r.Vault.Encrypt(string(plaintext))
	if err != nil {
		return false, fmt.Errorf("encrypt credential: %w", err)
	}

	// xmax = 0 distinguishes a fresh insert from a conflict update.
	var created bool
	err = r.DB.QueryRowContext(ctx, `
		INSERT INTO channel_credentials (business_id, channel, encrypted_payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (business_id, channel) DO UPDATE
		SET encrypted_payload = EXCLUDED.encrypted_payload,
		    updated_at = now()
		RETURNING (xmax = 0)
	`, req.BusinessID, req.Channel, cipher).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("save credential: %w", apperrors.MapDBError(err))
	}
	return created, nil
}

// GetFields loads and decrypts the payload for a (business, channel) pair.
func (r *CredentialRepo) GetFields(
	ctx context.Context,
	businessID string,
	channel model.Channel,
) (model.CredentialFields, error) {
	var cipher string
	err := r.DB.QueryRowContext(ctx, `
		SELECT encrypted_payload
		FROM channel_credentials
		WHERE business_id = $1 AND channel = $2
	`, businessID, channel).Scan(&cipher)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}

	plaintext, err := r.Vault.Decrypt(cipher)
	if err != nil {
		return nil, fmt.Errorf("decrypt credential for %s/%s: %w", businessID, channel, err)
	}

	var fields model.CredentialFields
	if err := json.Unmarshal([]byte(plaintext), &fields); err != nil {
		return nil, fmt.Errorf("decode credential payload: %w", err)
	}
	return fields, nil
}

// ListByBusiness returns credential summaries for a business. Secret
// material is never selected.
func (r *CredentialRepo) ListByBusiness(ctx context.Context, businessID string) ([]model.CredentialSummary, error) {
	var out []model.CredentialSummary
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT id, channel, created_at
			FROM channel_credentials
			WHERE business_id = $1
			ORDER BY channel
		`, businessID)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.CredentialSummary])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return out, nil
}

// Delete removes a credential by id. Deleting an absent id is a no-op so
// the operation stays idempotent.
func (r *CredentialRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.DB.ExecContext(ctx, `DELETE FROM channel_credentials WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}
