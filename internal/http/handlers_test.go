package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/core"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/model"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/service"
)

type memCredential struct {
	id     string
	fields model.CredentialFields
}

type memCredentialRepo struct {
	mu    sync.Mutex
	creds map[string]*memCredential
}

func newMemCredentialRepo() *memCredentialRepo {
	return &memCredentialRepo{creds: map[string]*memCredential{}}
}

func credKey(businessID string, channel model.Channel) string {
	return businessID + ":" + string(channel)
}

func (m *memCredentialRepo) Save(_ context.Context, req model.SaveCredentialRequest) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := credKey(req.BusinessID, req.Channel)
	existing, exists := m.creds[key]
	if exists {
		existing.fields = req.Fields
		return false, nil
	}
	m.creds[key] = &memCredential{id: uuid.NewString(), fields: req.Fields}
	return true, nil
}

func (m *memCredentialRepo) GetFields(_ context.Context, businessID string, channel model.Channel) (model.CredentialFields, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.creds[credKey(businessID, channel)]
	if !ok {
		return nil, model.ErrCredentialNotFound
	}
	return cred.fields, nil
}

func (m *memCredentialRepo) ListByBusiness(_ context.Context, businessID string) ([]model.CredentialSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.CredentialSummary
	for key, cred := range m.creds {
		prefix := businessID + ":"
		if strings.HasPrefix(key, prefix) {
			out = append(out, model.CredentialSummary{
				ID:      cred.id,
				Channel: model.Channel(strings.TrimPrefix(key, prefix)),
			})
		}
	}
	return out, nil
}

func (m *memCredentialRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, cred := range m.creds {
		if cred.id == id {
			delete(m.creds, key)
			return nil
		}
	}
	return nil
}

type memContentRepo struct{}

func (memContentRepo) GetByID(_ context.Context, id string) (*model.ContentItem, error) {
	if id != "content-1" {
		return nil, model.ErrContentNotFound
	}
	return &model.ContentItem{ID: id, BusinessID: "biz-1", Caption: "hello"}, nil
}

type memDistributionRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.DistributionJob
}

func newMemDistributionRepo() *memDistributionRepo {
	return &memDistributionRepo{jobs: map[string]*model.DistributionJob{}}
}

func (m *memDistributionRepo) Create(_ context.Context, p *model.CreateDistributionJobParams) (*model.DistributionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := &model.DistributionJob{
		ID:          uuid.NewString(),
		BusinessID:  p.BusinessID,
		ContentID:   p.ContentID,
		Channel:     p.Channel,
		Status:      model.DistributionQueued,
		ScheduledAt: p.ScheduledAt,
	}
	m.jobs[job.ID] = job
	return job, nil
}

func (m *memDistributionRepo) GetByID(_ context.Context, id string) (*model.DistributionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, model.ErrDistributionJobNotFound
	}
	return job, nil
}

func (m *memDistributionRepo) ReserveNext(context.Context, time.Duration) (*model.DistributionJob, error) {
	return nil, model.ErrNoJobsAvailable
}

func (m *memDistributionRepo) MarkSuccess(context.Context, string, string) (bool, error) {
	return false, nil
}

func (m *memDistributionRepo) MarkError(context.Context, string, string) (bool, error) {
	return false, nil
}

func (m *memDistributionRepo) RequeueExpired(context.Context) (int64, error) { return 0, nil }

func (m *memDistributionRepo) WaitForNotification(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

type memResearchRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.ResearchJob
}

func newMemResearchRepo() *memResearchRepo {
	return &memResearchRepo{jobs: map[string]*model.ResearchJob{}}
}

func (m *memResearchRepo) Create(_ context.Context, p *model.CreateResearchJobParams) (*model.ResearchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := &model.ResearchJob{
		ID:         uuid.NewString(),
		BusinessID: p.BusinessID,
		UserID:     p.UserID,
		Topic:      p.Topic,
		SourceURLs: p.SourceURLs,
		Status:     model.ResearchQueued,
		Stage:      model.StageScrape,
	}
	m.jobs[job.ID] = job
	return job, nil
}

func (m *memResearchRepo) GetByID(_ context.Context, id string) (*model.ResearchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, model.ErrResearchJobNotFound
	}
	return job, nil
}

func (m *memResearchRepo) ReserveNext(context.Context, model.ResearchStage, time.Duration) (*model.ResearchJob, error) {
	return nil, model.ErrNoJobsAvailable
}

func (m *memResearchRepo) AdvanceToReason(context.Context, string) (bool, error) {
	return false, nil
}

func (m *memResearchRepo) Complete(context.Context, *core.CompleteResearchParams) (bool, error) {
	return false, nil
}

func (m *memResearchRepo) MarkError(context.Context, string, string) (bool, error) {
	return false, nil
}

func (m *memResearchRepo) RequeueExpired(context.Context) (int64, error) { return 0, nil }

func (m *memResearchRepo) WaitForNotification(ctx context.Context, _ model.ResearchStage) error {
	<-ctx.Done()
	return ctx.Err()
}

type memTimelineRepo struct {
	mu     sync.Mutex
	events []model.StageEvent
}

func (m *memTimelineRepo) Append(_ context.Context, ev *model.StageEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *ev)
	return nil
}

func (m *memTimelineRepo) ListByJob(_ context.Context, jobID string) ([]model.StageEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.StageEvent
	for _, ev := range m.events {
		if ev.JobID == jobID {
			out = append(out, ev)
		}
	}
	return out, nil
}

type testRouterDeps struct {
	creds    *memCredentialRepo
	dist     *memDistributionRepo
	research *memResearchRepo
	timeline *memTimelineRepo
}

func newTestRouter(t *testing.T) (http.Handler, *testRouterDeps) {
	t.Helper()
	deps := &testRouterDeps{
		creds:    newMemCredentialRepo(),
		dist:     newMemDistributionRepo(),
		research: newMemResearchRepo(),
		timeline: &memTimelineRepo{},
	}

	router := NewRouter(RouterServices{
		Credentials: service.MustNewCredentialService(service.CredentialServiceOptions{
			Repo: deps.creds,
		}),
		Dispatch: service.MustNewDispatchService(service.DispatchServiceOptions{
			Jobs:        deps.dist,
			Content:     memContentRepo{},
			Credentials: deps.creds,
		}),
		Research: service.MustNewResearchService(service.ResearchServiceOptions{
			Jobs:     deps.research,
			Timeline: deps.timeline,
		}),
	})
	return router, deps
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCredentialHandlers_SaveListDelete(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/credentials/sms",
		`{"business_id": "biz-1", "fields": {"account_sid": "AC1", "auth_token": "tok", "from_number": "+15550001111"}}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"operation":"created"}`, rec.Body.String())

	// Resubmitting overwrites in place.
	rec = doJSON(t, router, http.MethodPost, "/api/credentials/sms",
		`{"business_id": "biz-1", "fields": {"account_sid": "AC2", "auth_token": "tok2", "from_number": "+15550001111"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"operation":"updated"}`, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/api/credentials/business/biz-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listResp struct {
		Credentials []model.CredentialSummary `json:"credentials"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	require.Len(t, listResp.Credentials, 1)
	assert.Equal(t, model.ChannelSMS, listResp.Credentials[0].Channel)

	rec = doJSON(t, router, http.MethodDelete, "/api/credentials/"+listResp.Credentials[0].ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/credentials/business/biz-1", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	assert.Empty(t, listResp.Credentials)
}

func TestCredentialHandlers_UnknownChannel(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/credentials/fax",
		`{"business_id": "biz-1", "fields": {"number": "1"}}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation")
}

func TestCredentialHandlers_MissingFields(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/credentials/sms",
		`{"business_id": "biz-1"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDistributionHandlers_PartialOutcome(t *testing.T) {
	router, deps := newTestRouter(t)
	_, err := deps.creds.Save(context.Background(), model.SaveCredentialRequest{
		BusinessID: "biz-1", Channel: model.ChannelSMS,
		Fields: model.CredentialFields{"account_sid": "AC1", "auth_token": "t", "from_number": "+15550001111"},
	})
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/api/distribute",
		`{"business_id": "biz-1", "content_id": "content-1", "channels": ["sms", "email"], "payload": {"recipients": ["+15550002222"]}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var result service.DispatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 2, result.TotalJobs)
	require.Len(t, result.SuccessJobs, 1)
	assert.Equal(t, model.ChannelSMS, result.SuccessJobs[0].Channel)
	require.Len(t, result.FailedJobs, 1)
	assert.Equal(t, model.ChannelEmail, result.FailedJobs[0].Channel)
	assert.Contains(t, result.FailedJobs[0].Reason, "no credential configured")
}

func TestDistributionHandlers_ValidationFailureRejectsWholeRequest(t *testing.T) {
	router, deps := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/distribute",
		`{"content_id": "content-1", "channels": ["sms"]}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var errBody apiError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	assert.Equal(t, "validation", errBody.Error)
	assert.Equal(t, "business_id", errBody.Field)
	assert.Empty(t, deps.dist.jobs)
}

func TestDistributionHandlers_GetJob(t *testing.T) {
	router, deps := newTestRouter(t)
	job, err := deps.dist.Create(context.Background(), &model.CreateDistributionJobParams{
		BusinessID: "biz-1", ContentID: "content-1", Channel: model.ChannelSMS,
	})
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodGet, "/api/distribute/jobs/"+job.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), job.ID)

	rec = doJSON(t, router, http.MethodGet, "/api/distribute/jobs/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/distribute/jobs/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResearchHandlers_CreateAndGet(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/research",
		`{"businessId": "biz-1", "userId": "user-1", "researchTopic": "local coffee roasters", "urls": ["https://a.test"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var ack struct {
		JobID  string `json:"jobId"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	require.NotEmpty(t, ack.JobID)
	assert.Equal(t, "queued", ack.Status)

	rec = doJSON(t, router, http.MethodGet, "/api/research/"+ack.JobID, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var job model.ResearchJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, model.ResearchQueued, job.Status)
	assert.Equal(t, []string{"https://a.test"}, job.SourceURLs)

	rec = doJSON(t, router, http.MethodGet, "/api/research/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/research/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResearchHandlers_CreatePromptBody(t *testing.T) {
	router, deps := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/research",
		`{"prompt": "competitors of local bakeries", "businessId": "biz-1"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, deps.research.jobs, 1)
	for _, job := range deps.research.jobs {
		assert.Equal(t, "competitors of local bakeries", job.Topic)
		assert.Empty(t, job.SourceURLs)
	}
}

func TestResearchHandlers_CreateRequiresTopic(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/research",
		`{"businessId": "biz-1"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResearchHandlers_EventsReplaysTimelineForTerminalJob(t *testing.T) {
	router, deps := newTestRouter(t)
	job, err := deps.research.Create(context.Background(), &model.CreateResearchJobParams{
		BusinessID: "biz-1", Topic: "bakeries",
	})
	require.NoError(t, err)
	deps.research.jobs[job.ID].Status = model.ResearchCompleted

	for _, ev := range []model.StageEvent{
		{JobID: job.ID, Step: model.StepPartialInputAnalysis, Payload: json.RawMessage(`{"source_url":"https://a.test"}`)},
		{JobID: job.ID, Step: model.StepOverallSummary, Payload: json.RawMessage(`{"overall_summary":"crowded"}`)},
		{JobID: job.ID, Step: model.StepDone},
	} {
		require.NoError(t, deps.timeline.Append(context.Background(), &ev))
	}

	rec := doJSON(t, router, http.MethodGet, "/api/research/"+job.ID+"/events", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "event: partial_input_analysis")
	assert.Contains(t, body, "event: overall_summary")
	assert.Contains(t, body, "event: done")
	assert.Contains(t, body, `"source_url":"https://a.test"`)
}

type memProgressPublisher struct {
	ch chan model.StageEvent
}

func (p *memProgressPublisher) Publish(context.Context, *model.StageEvent) error { return nil }

func (p *memProgressPublisher) Subscribe(
	context.Context, string,
) (<-chan model.StageEvent, func(), error) {
	return p.ch, func() {}, nil
}

func TestResearchHandlers_EventsKeepAliveDuringQuietStream(t *testing.T) {
	research := newMemResearchRepo()
	svc := service.MustNewResearchService(service.ResearchServiceOptions{
		Jobs:     research,
		Timeline: &memTimelineRepo{},
		Progress: &memProgressPublisher{ch: make(chan model.StageEvent)},
	})
	job, err := svc.Create(context.Background(), &model.CreateResearchJobParams{
		BusinessID: "biz-1", Topic: "bakeries",
	})
	require.NoError(t, err)

	h := &ResearchHandlers{Svc: svc, Heartbeat: 5 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/research/"+job.ID+"/events", nil)
	req = req.WithContext(ctx)
	req.SetPathValue("id", job.ID)
	rec := httptest.NewRecorder()

	h.Events(rec, req)

	assert.Contains(t, rec.Body.String(), ": ping")
}
