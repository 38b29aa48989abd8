package channels

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/model"
)

// EmailOptions configures the email adapter.
type EmailOptions struct {
	// BaseURL is the transactional email API root.
	BaseURL    string
	HTTPClient *http.Client
}

// EmailAdapter sends the content as a batch email through the
// transactional email provider.
type EmailAdapter struct {
	baseURL string
	http    *http.Client
}

// NewEmailAdapter constructs the email adapter.
func NewEmailAdapter(opts EmailOptions) *EmailAdapter {
	return &EmailAdapter{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    resolveClient(opts.HTTPClient),
	}
}

// Channel implements Adapter.
func (a *EmailAdapter) Channel() model.Channel { return model.ChannelEmail }

// Validate implements Adapter.
func (a *EmailAdapter) Validate(job *model.DistributionJob) error {
	if job == nil {
		return errors.New("job is required")
	}
	payload, err := job.ChannelPayload()
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if len(payload.Recipients) == 0 {
		return errors.New("email requires at least one recipient")
	}
	if strings.TrimSpace(payload.Subject) == "" {
		return errors.New("email requires a subject")
	}
	return nil
}

// Process implements Adapter.
func (a *EmailAdapter) Process(ctx context.Context, in *ProcessInput) *Result {
	if in == nil || in.Content == nil {
		return failure(errors.New("content is required"))
	}
	apiKey := in.Credentials["api_key"]
	if apiKey == "" {
		return failure(errors.New("credential is missing api_key"))
	}
	fromEmail := in.Payload.FromEmail
	if fromEmail == "" {
		fromEmail = in.Credentials["from_email"]
	}
	if fromEmail == "" {
		return failure(errors.New("email requires a sender address"))
	}
	if len(in.Payload.Recipients) == 0 {
		return failure(errors.New("email requires at least one recipient"))
	}
	if strings.TrimSpace(in.Payload.Subject) == "" {
		return failure(errors.New("email requires a subject"))
	}

	body := map[string]any{
		"from":    map[string]string{"email": fromEmail, "name": in.Payload.FromName},
		"to":      in.Payload.Recipients,
		"subject": in.Payload.Subject,
		"text":    in.Content.Caption,
	}
	if in.Content.ImageURL != nil && *in.Content.ImageURL != "" {
		body["image_url"] = *in.Content.ImageURL
	}

	var resp struct {
		MessageID string `json:"message_id"`
	}
	if _, err := postJSON(ctx, a.http, a.baseURL+"/send", map[string]string{
		"Authorization": "Bearer " + apiKey,
	}, body, &resp); err != nil {
		return failure(fmt.Errorf("send email: %w", err))
	}
	return success(resp.MessageID)
}

var _ Adapter = (*EmailAdapter)(nil)
