package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// DistributionStatus tracks a distribution job through its lifecycle.
// Transitions are forward-only: queued -> running -> success | error.
type DistributionStatus string

const (
	// DistributionQueued indicates a job is waiting for a worker.
	DistributionQueued DistributionStatus = "queued"
	// DistributionRunning indicates a worker holds the job's lease.
	DistributionRunning DistributionStatus = "running"
	// DistributionSuccess indicates the channel accepted the delivery.
	DistributionSuccess DistributionStatus = "success"
	// DistributionError indicates the delivery failed terminally.
	DistributionError DistributionStatus = "error"
)

// ErrNoJobsAvailable is returned when no jobs are eligible for reservation.
var ErrNoJobsAvailable = errors.New("no jobs available")

// ErrDistributionJobNotFound is returned when a distribution job is absent.
var ErrDistributionJobNotFound = errors.New("distribution job not found")

// ErrContentNotFound is returned when the requested content item is absent.
var ErrContentNotFound = errors.New("content not found")

// Valid returns true if the DistributionStatus is a known state.
func (s DistributionStatus) Valid() bool {
	return s == DistributionQueued || s == DistributionRunning ||
		s == DistributionSuccess || s == DistributionError
}

// Terminal reports whether the status admits no further transitions.
func (s DistributionStatus) Terminal() bool {
	return s == DistributionSuccess || s == DistributionError
}

// CanTransition reports whether moving from s to next preserves the
// forward-only state machine. Re-asserting the current state is allowed so
// at-least-once redelivery stays idempotent.
func (s DistributionStatus) CanTransition(next DistributionStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case DistributionQueued:
		return next == DistributionRunning
	case DistributionRunning:
		return next == DistributionSuccess || next == DistributionError
	default:
		return false
	}
}

// DistributionJob is one (content, channel) unit of delivery work.
type DistributionJob struct {
	ID           string             `json:"id"                      db:"id"`
	BusinessID   string             `json:"business_id"             db:"business_id"`
	ContentID    string             `json:"content_id"              db:"content_id"`
	Channel      Channel            `json:"channel"                 db:"channel"`
	Status       DistributionStatus `json:"status"                  db:"status"`
	ScheduledAt  time.Time          `json:"scheduled_at"            db:"scheduled_at"`
	Payload      json.RawMessage    `json:"payload"                 db:"payload"`
	ExternalID   *string            `json:"external_id,omitempty"   db:"external_id"`
	ErrorMessage *string            `json:"error_message,omitempty" db:"error_message"`
	LeaseExpires *time.Time         `json:"-"                       db:"lease_expires_at"`
	CreatedAt    time.Time          `json:"created_at"              db:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"              db:"updated_at"`
}

// ChannelPayload decodes the job's channel-specific parameters. A job
// without a payload decodes to the zero value.
func (j *DistributionJob) ChannelPayload() (ChannelPayload, error) {
	var p ChannelPayload
	if len(j.Payload) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return ChannelPayload{}, err
	}
	return p, nil
}

// ContentItem is the caption plus optional image reference that gets fanned
// out to every requested channel.
type ContentItem struct {
	ID         string  `json:"id"                  db:"id"`
	BusinessID string  `json:"business_id"         db:"business_id"`
	Caption    string  `json:"caption"             db:"caption"`
	ImageURL   *string `json:"image_url,omitempty" db:"image_url"`
}

// ChannelPayload carries the channel-specific delivery parameters supplied
// with a distribution request.
type ChannelPayload struct {
	// SMS and email deliveries address explicit recipients.
	Recipients []string `json:"recipients,omitempty"`
	// Email only.
	Subject   string `json:"subject,omitempty"`
	FromName  string `json:"from_name,omitempty"`
	FromEmail string `json:"from_email,omitempty"`
	// Group notify targets.
	GroupIDs []string `json:"group_ids,omitempty"`
}

// CreateDistributionJobParams groups the values needed to insert a queued
// job row.
type CreateDistributionJobParams struct {
	BusinessID  string
	ContentID   string
	Channel     Channel
	ScheduledAt time.Time
	Payload     json.RawMessage
}

// Validate validates CreateDistributionJobParams.
func (p *CreateDistributionJobParams) Validate() error {
	if strings.TrimSpace(p.BusinessID) == "" {
		return errors.New("business id is required")
	}
	if strings.TrimSpace(p.ContentID) == "" {
		return errors.New("content id is required")
	}
	if !p.Channel.Valid() {
		return errors.New("invalid channel")
	}
	return nil
}
