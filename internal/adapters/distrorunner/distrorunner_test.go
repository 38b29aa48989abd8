package distrorunner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/adapters/channels"
	domainjob "github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/job"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/model"
)

type fakeQueue struct {
	mu        sync.Mutex
	jobs      []*model.DistributionJob
	successes map[string]string
	failures  map[string]string
	done      chan struct{}
}

func newFakeQueue(jobs ...*model.DistributionJob) *fakeQueue {
	return &fakeQueue{
		jobs:      jobs,
		successes: map[string]string{},
		failures:  map[string]string{},
		done:      make(chan struct{}, len(jobs)),
	}
}

func (f *fakeQueue) Create(context.Context, *model.CreateDistributionJobParams) (*model.DistributionJob, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeQueue) GetByID(context.Context, string) (*model.DistributionJob, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeQueue) ReserveNext(context.Context, time.Duration) (*model.DistributionJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.jobs) == 0 {
		return nil, model.ErrNoJobsAvailable
	}
	job := f.jobs[0]
	f.jobs = f.jobs[1:]
	job.Status = model.DistributionRunning
	return job, nil
}

func (f *fakeQueue) MarkSuccess(_ context.Context, id, externalID string) (bool, error) {
	f.mu.Lock()
	f.successes[id] = externalID
	f.mu.Unlock()
	f.done <- struct{}{}
	return true, nil
}

func (f *fakeQueue) MarkError(_ context.Context, id, msg string) (bool, error) {
	f.mu.Lock()
	f.failures[id] = msg
	f.mu.Unlock()
	f.done <- struct{}{}
	return true, nil
}

func (f *fakeQueue) RequeueExpired(context.Context) (int64, error) { return 0, nil }

func (f *fakeQueue) WaitForNotification(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

type fakeNotifier struct{}

func (fakeNotifier) Subscribe(domainjob.Queue) (func(), <-chan struct{}) {
	return func() {}, make(chan struct{})
}

func (fakeNotifier) StopAll() {}

type fakeContent struct{}

func (fakeContent) GetByID(_ context.Context, id string) (*model.ContentItem, error) {
	return &model.ContentItem{ID: id, BusinessID: "biz-1", Caption: "hi"}, nil
}

type fakeCreds struct{}

func (fakeCreds) Save(context.Context, model.SaveCredentialRequest) (bool, error) {
	return false, errors.New("not implemented")
}

func (fakeCreds) GetFields(context.Context, string, model.Channel) (model.CredentialFields, error) {
	return model.CredentialFields{"access_token": "tok", "refresh_token": "r"}, nil
}

func (fakeCreds) ListByBusiness(context.Context, string) ([]model.CredentialSummary, error) {
	return nil, errors.New("not implemented")
}

func (fakeCreds) Delete(context.Context, string) error { return nil }

type stubAdapter struct {
	channel model.Channel
	result  *channels.Result
}

func (s *stubAdapter) Channel() model.Channel                    { return s.channel }
func (s *stubAdapter) Validate(*model.DistributionJob) error     { return nil }
func (s *stubAdapter) Process(context.Context, *channels.ProcessInput) *channels.Result {
	return s.result
}

func runUntilProcessed(t *testing.T, runner *Runner, queue *fakeQueue, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		_ = runner.Run(ctx)
		close(runDone)
	}()

	for range n {
		select {
		case <-queue.done:
		case <-ctx.Done():
			t.Fatal("timed out waiting for job processing")
		}
	}
	cancel()
	<-runDone
}

func TestRunner_DeliversAndMarksSuccess(t *testing.T) {
	queue := newFakeQueue(&model.DistributionJob{
		ID: "job-1", BusinessID: "biz-1", ContentID: "content-1",
		Channel: model.ChannelSocial, Status: model.DistributionQueued,
	})
	registry, err := channels.NewRegistry(&stubAdapter{
		channel: model.ChannelSocial,
		result:  &channels.Result{Success: true, ExternalID: "post-1"},
	})
	require.NoError(t, err)

	runner, err := NewRunner(RunnerOptions{
		Jobs:        queue,
		Content:     fakeContent{},
		Credentials: fakeCreds{},
		Registry:    registry,
		Notifier:    fakeNotifier{},
	})
	require.NoError(t, err)

	runUntilProcessed(t, runner, queue, 1)

	assert.Equal(t, map[string]string{"job-1": "post-1"}, queue.successes)
	assert.Empty(t, queue.failures)
}

func TestNewRunner_LeaseResolvedThroughPolicy(t *testing.T) {
	registry, err := channels.NewRegistry(&stubAdapter{channel: model.ChannelSocial})
	require.NoError(t, err)
	policy, err := domainjob.NewLeasePolicy(90 * time.Second)
	require.NoError(t, err)

	base := RunnerOptions{
		Jobs:        newFakeQueue(),
		Content:     fakeContent{},
		Credentials: fakeCreds{},
		Registry:    registry,
		Notifier:    fakeNotifier{},
		LeasePolicy: policy,
	}

	// Unset lease falls back to the policy default.
	runner, err := NewRunner(base)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, runner.lease)

	// An explicit lease passes through; a sub-second one is clamped up.
	base.Lease = 3 * time.Minute
	runner, err = NewRunner(base)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Minute, runner.lease)

	base.Lease = 100 * time.Millisecond
	runner, err = NewRunner(base)
	require.NoError(t, err)
	assert.Equal(t, time.Second, runner.lease)
}

func TestRunner_AdapterFailureMarksError(t *testing.T) {
	queue := newFakeQueue(&model.DistributionJob{
		ID: "job-2", BusinessID: "biz-1", ContentID: "content-1",
		Channel: model.ChannelSocial, Status: model.DistributionQueued,
	})
	registry, err := channels.NewRegistry(&stubAdapter{
		channel: model.ChannelSocial,
		result:  &channels.Result{Success: false, Err: errors.New("provider exploded")},
	})
	require.NoError(t, err)

	runner, err := NewRunner(RunnerOptions{
		Jobs:        queue,
		Content:     fakeContent{},
		Credentials: fakeCreds{},
		Registry:    registry,
		Notifier:    fakeNotifier{},
	})
	require.NoError(t, err)

	runUntilProcessed(t, runner, queue, 1)

	assert.Empty(t, queue.successes)
	assert.Contains(t, queue.failures["job-2"], "provider exploded")
}

func TestRunner_UnknownChannelFailsJobAndContinues(t *testing.T) {
	queue := newFakeQueue(
		&model.DistributionJob{
			ID: "job-3", BusinessID: "biz-1", ContentID: "content-1",
			Channel: model.ChannelSMS, Status: model.DistributionQueued,
		},
		&model.DistributionJob{
			ID: "job-4", BusinessID: "biz-1", ContentID: "content-1",
			Channel: model.ChannelSocial, Status: model.DistributionQueued,
		},
	)
	// Only the social adapter is registered; the sms job must fail without
	// stopping the loop.
	registry, err := channels.NewRegistry(&stubAdapter{
		channel: model.ChannelSocial,
		result:  &channels.Result{Success: true, ExternalID: "post-9"},
	})
	require.NoError(t, err)

	runner, err := NewRunner(RunnerOptions{
		Jobs:        queue,
		Content:     fakeContent{},
		Credentials: fakeCreds{},
		Registry:    registry,
		Notifier:    fakeNotifier{},
	})
	require.NoError(t, err)

	runUntilProcessed(t, runner, queue, 2)

	assert.Contains(t, queue.failures["job-3"], "no adapter registered")
	assert.Equal(t, "post-9", queue.successes["job-4"])
}
