package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/core"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/model"
	apperrors "github.com/Shillsphere/market-peak-pilot-sub000/internal/errors"
)

// CredentialServiceOptions groups dependencies for CredentialService.
type CredentialServiceOptions struct {
	Repo   core.CredentialRepository // Required: credential repository
	Logger *slog.Logger              // Optional: structured logger
}

// CredentialService provides business logic for channel credential
// management. Secret material never leaves this layer decrypted except
// through GetFields, which only the dispatcher and adapters call.
type CredentialService struct {
	repo   core.CredentialRepository
	logger *slog.Logger
}

// NewCredentialService constructs a new CredentialService.
func NewCredentialService(opts CredentialServiceOptions) (*CredentialService, error) {
	if opts.Repo == nil {
		return nil, errors.New("CredentialRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialService{repo: opts.Repo, logger: logger}, nil
}

// MustNewCredentialService constructs a new CredentialService and panics on error.
func MustNewCredentialService(opts CredentialServiceOptions) *CredentialService {
	svc, err := NewCredentialService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create CredentialService: %v", err))
	}
	return svc
}

// Save validates and upserts a credential. Resubmitting a (business,
// channel) pair overwrites in place; created reports which happened.
func (s *CredentialService) Save(ctx context.Context, req model.SaveCredentialRequest) (bool, error) {
	if err := req.Validate(); err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid credential")
	}
	created, err := s.repo.Save(ctx, req)
	if err != nil {
		return false, fmt.Errorf("save credential: %w", err)
	}
	s.logger.InfoContext(ctx, "credential saved",
		"business_id", req.BusinessID, "channel", req.Channel, "created", created)
	return created, nil
}

// List returns a business's credential summaries. Secret material is never
// included.
func (s *CredentialService) List(ctx context.Context, businessID string) ([]model.CredentialSummary, error) {
	if businessID == "" {
		return nil, apperrors.Validation("business id is required")
	}
	summaries, err := s.repo.ListByBusiness(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return summaries, nil
}

// Delete removes a credential by id. Deleting an absent id succeeds.
func (s *CredentialService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return apperrors.Validation("credential id is required")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	s.logger.InfoContext(ctx, "credential deleted", "credential_id", id)
	return nil
}
