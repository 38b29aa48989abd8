// Package core defines the contracts between the service layer and the data
// and adapter layers (ports in hexagonal architecture). Services depend on
// these interfaces, not on concrete implementations.
package core

import (
	"context"
	"time"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/model"
)

// CredentialRepository defines credential storage with at-rest encryption.
// Save overwrites in place on resubmission; one record per (business,
// channel) pair.
type CredentialRepository interface {
	// Save upserts a credential and reports whether the record was created
	// or updated.
	Save(ctx context.Context, req model.SaveCredentialRequest) (created bool, err error)
	// GetFields returns the decrypted payload for a (business, channel) pair.
	GetFields(ctx context.Context, businessID string, channel model.Channel) (model.CredentialFields, error)
	// ListByBusiness returns credential summaries without secret material.
	ListByBusiness(ctx context.Context, businessID string) ([]model.CredentialSummary, error)
	// Delete removes a credential by id. Deleting an absent id is a no-op.
	Delete(ctx context.Context, id string) error
}

// ContentRepository resolves the content to be distributed.
type ContentRepository interface {
	GetByID(ctx context.Context, id string) (*model.ContentItem, error)
}

// DistributionJobRepository is the durable distribution queue.
type DistributionJobRepository interface {
	// Create inserts a queued job row and wakes waiting workers. The row
	// exists before any worker can observe the job.
	Create(ctx context.Context, p *model.CreateDistributionJobParams) (*model.DistributionJob, error)
	GetByID(ctx context.Context, id string) (*model.DistributionJob, error)
	// ReserveNext atomically claims the oldest eligible queued job, moving
	// it to running under a lease. Returns model.ErrNoJobsAvailable when
	// nothing is eligible.
	ReserveNext(ctx context.Context, lease time.Duration) (*model.DistributionJob, error)
	// MarkSuccess records a successful delivery. Only running jobs change.
	MarkSuccess(ctx context.Context, id, externalID string) (bool, error)
	// MarkError records a terminal delivery failure. Only running jobs change.
	MarkError(ctx context.Context, id, errMsg string) (bool, error)
	// RequeueExpired returns expired-lease running jobs to the queue.
	RequeueExpired(ctx context.Context) (int64, error)
	// WaitForNotification blocks until new distribution work may exist.
	WaitForNotification(ctx context.Context) error
}

// ResearchJobRepository is the durable research pipeline queue. The scrape
// and reason stages are logically distinct queues over the same rows,
// selected by the job's stage column.
type ResearchJobRepository interface {
	Create(ctx context.Context, p *model.CreateResearchJobParams) (*model.ResearchJob, error)
	GetByID(ctx context.Context, id string) (*model.ResearchJob, error)
	// ReserveNext claims the oldest queued job for the given stage.
	ReserveNext(ctx context.Context, stage model.ResearchStage, lease time.Duration) (*model.ResearchJob, error)
	// AdvanceToReason hands a scraping job to the reasoning queue.
	AdvanceToReason(ctx context.Context, id string) (bool, error)
	// Complete finalizes a reasoning job with its result and cost.
	Complete(ctx context.Context, p *CompleteResearchParams) (bool, error)
	// MarkError terminates a non-terminal job with an error message.
	// Jobs already completed or errored are never mutated.
	MarkError(ctx context.Context, id, errMsg string) (bool, error)
	RequeueExpired(ctx context.Context) (int64, error)
	WaitForNotification(ctx context.Context, stage model.ResearchStage) error
}

// CompleteResearchParams groups Complete's inputs to keep param count low.
type CompleteResearchParams struct {
	ID      string
	Result  *model.ResearchResult
	CostUSD float64
}

// DocumentRepository stores scraped pages. The scrape stage clears a job's
// rows before writing so redelivered jobs do not accumulate duplicates.
type DocumentRepository interface {
	Insert(ctx context.Context, doc *model.ResearchDocument) (*model.ResearchDocument, error)
	// DeleteByJob removes every document for a job and reports how many
	// rows were dropped.
	DeleteByJob(ctx context.Context, jobID string) (int64, error)
	ListByJob(ctx context.Context, jobID string) ([]model.ResearchDocument, error)
}

// TimelineRepository persists stage events append-only so reconnecting
// clients can replay progress they missed.
type TimelineRepository interface {
	Append(ctx context.Context, ev *model.StageEvent) error
	ListByJob(ctx context.Context, jobID string) ([]model.StageEvent, error)
}

// ProgressPublisher delivers incremental pipeline events to live
// subscribers. Publishing also appends to the persisted timeline; the live
// channel is a liveness optimization, not the source of truth.
type ProgressPublisher interface {
	Publish(ctx context.Context, ev *model.StageEvent) error
	// Subscribe returns a channel of live events for the job plus a cancel
	// function that releases the subscription.
	Subscribe(ctx context.Context, jobID string) (<-chan model.StageEvent, func(), error)
}

// CredentialWriter is the narrow write-back port adapters use to persist
// refreshed tokens through the vault.
type CredentialWriter interface {
	Save(ctx context.Context, req model.SaveCredentialRequest) (bool, error)
}
