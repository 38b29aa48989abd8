package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/core"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/model"
	apperrors "github.com/Shillsphere/market-peak-pilot-sub000/internal/errors"
)

type fakeResearchRepo struct {
	jobs      map[string]*model.ResearchJob
	createErr error
	nextID    int
}

func (f *fakeResearchRepo) Create(
	_ context.Context,
	p *model.CreateResearchJobParams,
) (*model.ResearchJob, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	job := &model.ResearchJob{
		ID:         fmt.Sprintf("research-%d", f.nextID),
		BusinessID: p.BusinessID,
		UserID:     p.UserID,
		Topic:      p.Topic,
		SourceURLs: p.SourceURLs,
		Status:     model.ResearchQueued,
		Stage:      model.StageScrape,
	}
	if f.jobs == nil {
		f.jobs = map[string]*model.ResearchJob{}
	}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeResearchRepo) GetByID(_ context.Context, id string) (*model.ResearchJob, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, model.ErrResearchJobNotFound
	}
	return job, nil
}

func (f *fakeResearchRepo) ReserveNext(
	context.Context, model.ResearchStage, time.Duration,
) (*model.ResearchJob, error) {
	return nil, model.ErrNoJobsAvailable
}

func (f *fakeResearchRepo) AdvanceToReason(context.Context, string) (bool, error) {
	return false, nil
}

func (f *fakeResearchRepo) Complete(context.Context, *core.CompleteResearchParams) (bool, error) {
	return false, nil
}

func (f *fakeResearchRepo) MarkError(context.Context, string, string) (bool, error) {
	return false, nil
}

func (f *fakeResearchRepo) RequeueExpired(context.Context) (int64, error) { return 0, nil }

func (f *fakeResearchRepo) WaitForNotification(ctx context.Context, _ model.ResearchStage) error {
	<-ctx.Done()
	return ctx.Err()
}

type fakeTimelineRepo struct {
	events map[string][]model.StageEvent
}

func (f *fakeTimelineRepo) Append(_ context.Context, ev *model.StageEvent) error {
	if f.events == nil {
		f.events = map[string][]model.StageEvent{}
	}
	f.events[ev.JobID] = append(f.events[ev.JobID], *ev)
	return nil
}

func (f *fakeTimelineRepo) ListByJob(_ context.Context, jobID string) ([]model.StageEvent, error) {
	return f.events[jobID], nil
}

func newTestResearchService(t *testing.T, repo *fakeResearchRepo) *ResearchService {
	t.Helper()
	svc, err := NewResearchService(ResearchServiceOptions{
		Jobs:     repo,
		Timeline: &fakeTimelineRepo{},
	})
	require.NoError(t, err)
	return svc
}

func TestNewResearchServiceRequiresRepos(t *testing.T) {
	_, err := NewResearchService(ResearchServiceOptions{Timeline: &fakeTimelineRepo{}})
	require.Error(t, err)

	_, err = NewResearchService(ResearchServiceOptions{Jobs: &fakeResearchRepo{}})
	require.Error(t, err)
}

func TestResearchCreateQueuesJob(t *testing.T) {
	repo := &fakeResearchRepo{}
	svc := newTestResearchService(t, repo)

	job, err := svc.Create(context.Background(), &model.CreateResearchJobParams{
		BusinessID: "biz-1",
		UserID:     "user-1",
		Topic:      "pricing",
		SourceURLs: []string{"https://example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.ResearchQueued, job.Status)
	assert.Equal(t, model.StageScrape, job.Stage)
	assert.Equal(t, []string{"https://example.com"}, job.SourceURLs)
}

func TestResearchCreateRejectsInvalidParams(t *testing.T) {
	repo := &fakeResearchRepo{}
	svc := newTestResearchService(t, repo)

	tests := []struct {
		name   string
		params *model.CreateResearchJobParams
	}{
		{name: "nil params", params: nil},
		{name: "missing business", params: &model.CreateResearchJobParams{Topic: "pricing"}},
		{name: "missing topic", params: &model.CreateResearchJobParams{BusinessID: "biz-1"}},
		{
			name: "blank source url",
			params: &model.CreateResearchJobParams{
				BusinessID: "biz-1",
				Topic:      "pricing",
				SourceURLs: []string{" "},
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.params)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
			assert.Empty(t, repo.jobs)
		})
	}
}

func TestResearchCreateWrapsRepoError(t *testing.T) {
	repo := &fakeResearchRepo{createErr: errors.New("connection refused")}
	svc := newTestResearchService(t, repo)

	_, err := svc.Create(context.Background(), &model.CreateResearchJobParams{
		BusinessID: "biz-1",
		Topic:      "pricing",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create research job")
}

func TestResearchGet(t *testing.T) {
	repo := &fakeResearchRepo{}
	svc := newTestResearchService(t, repo)

	created, err := svc.Create(context.Background(), &model.CreateResearchJobParams{
		BusinessID: "biz-1",
		Topic:      "pricing",
	})
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = svc.Get(context.Background(), "does-not-exist")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))

	_, err = svc.Get(context.Background(), "")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestResearchTimelineReturnsPersistedEvents(t *testing.T) {
	timeline := &fakeTimelineRepo{}
	svc, err := NewResearchService(ResearchServiceOptions{
		Jobs:     &fakeResearchRepo{},
		Timeline: timeline,
	})
	require.NoError(t, err)

	require.NoError(t, timeline.Append(context.Background(), &model.StageEvent{
		JobID: "research-1",
		Step:  model.StepPartialInputAnalysis,
	}))
	require.NoError(t, timeline.Append(context.Background(), &model.StageEvent{
		JobID: "research-1",
		Step:  model.StepOverallSummary,
	}))

	events, err := svc.Timeline(context.Background(), "research-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, model.StepPartialInputAnalysis, events[0].Step)
	assert.Equal(t, model.StepOverallSummary, events[1].Step)
}

func TestResearchSubscribeWithoutPublisher(t *testing.T) {
	svc := newTestResearchService(t, &fakeResearchRepo{})

	_, _, err := svc.Subscribe(context.Background(), "research-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}
