package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/model"
	apperrors "github.com/Shillsphere/market-peak-pilot-sub000/internal/errors"
)

type recordingCredentialRepo struct {
	fakeCredentialRepo
	saved   []model.SaveCredentialRequest
	deleted []string
	created bool
}

func (r *recordingCredentialRepo) Save(_ context.Context, req model.SaveCredentialRequest) (bool, error) {
	r.saved = append(r.saved, req)
	return r.created, nil
}

func (r *recordingCredentialRepo) ListByBusiness(context.Context, string) ([]model.CredentialSummary, error) {
	return []model.CredentialSummary{{ID: "cred-1", Channel: model.ChannelSMS}}, nil
}

func (r *recordingCredentialRepo) Delete(_ context.Context, id string) error {
	r.deleted = append(r.deleted, id)
	return nil
}

func TestCredentialService_SaveValidatesFields(t *testing.T) {
	repo := &recordingCredentialRepo{}
	svc := MustNewCredentialService(CredentialServiceOptions{Repo: repo})

	_, err := svc.Save(context.Background(), model.SaveCredentialRequest{
		BusinessID: "biz-1",
		Channel:    model.ChannelSMS,
		Fields:     model.CredentialFields{"account_sid": "AC1"},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Empty(t, repo.saved)
}

func TestCredentialService_SaveUpserts(t *testing.T) {
	repo := &recordingCredentialRepo{created: true}
	svc := MustNewCredentialService(CredentialServiceOptions{Repo: repo})

	created, err := svc.Save(context.Background(), model.SaveCredentialRequest{
		BusinessID: "biz-1",
		Channel:    model.ChannelSMS,
		Fields: model.CredentialFields{
			"account_sid": "AC1",
			"auth_token":  "tok",
			"from_number": "+15550000000",
		},
	})
	require.NoError(t, err)
	assert.True(t, created)
	require.Len(t, repo.saved, 1)
}

func TestCredentialService_ListRequiresBusinessID(t *testing.T) {
	svc := MustNewCredentialService(CredentialServiceOptions{Repo: &recordingCredentialRepo{}})

	_, err := svc.List(context.Background(), "")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	summaries, err := svc.List(context.Background(), "biz-1")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "cred-1", summaries[0].ID)
}

func TestCredentialService_DeleteIsIdempotent(t *testing.T) {
	repo := &recordingCredentialRepo{}
	svc := MustNewCredentialService(CredentialServiceOptions{Repo: repo})

	require.NoError(t, svc.Delete(context.Background(), "cred-9"))
	require.NoError(t, svc.Delete(context.Background(), "cred-9"))
	assert.Equal(t, []string{"cred-9", "cred-9"}, repo.deleted)
}
