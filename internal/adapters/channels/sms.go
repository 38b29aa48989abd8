package channels

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/model"
)

// SMS provider throughput defaults.
const (
	DefaultSMSBatchSize  = 10
	DefaultSMSBatchDelay = time.Second
)

// SMSOptions configures the SMS adapter.
type SMSOptions struct {
	// BaseURL is the messaging API root.
	BaseURL    string
	HTTPClient *http.Client
	// BatchSize caps recipients per provider call; defaults to 10.
	BatchSize int
	// BatchDelay is the pause between batches; defaults to 1s.
	BatchDelay time.Duration
	// sleep is injected by tests to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// SMSAdapter sends the caption as a text message to each recipient, in
// fixed-size batches with an inter-batch pause to respect provider
// throughput limits.
type SMSAdapter struct {
	baseURL    string
	http       *http.Client
	batchSize  int
	batchDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewSMSAdapter constructs the SMS adapter.
func NewSMSAdapter(opts SMSOptions) *SMSAdapter {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultSMSBatchSize
	}
	batchDelay := opts.BatchDelay
	if batchDelay <= 0 {
		batchDelay = DefaultSMSBatchDelay
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &SMSAdapter{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		http:       resolveClient(opts.HTTPClient),
		batchSize:  batchSize,
		batchDelay: batchDelay,
		sleep:      sleep,
	}
}

// Channel implements Adapter.
func (a *SMSAdapter) Channel() model.Channel { return model.ChannelSMS }

// Validate implements Adapter.
func (a *SMSAdapter) Validate(job *model.DistributionJob) error {
	if job == nil {
		return errors.New("job is required")
	}
	payload, err := job.ChannelPayload()
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if len(payload.Recipients) == 0 {
		return errors.New("sms requires at least one recipient")
	}
	return nil
}

// Process implements Adapter. Per-recipient outcomes aggregate into one
// job-level result: success iff at least one message was accepted and no
// recipient failed.
func (a *SMSAdapter) Process(ctx context.Context, in *ProcessInput) *Result {
	if in == nil || in.Content == nil {
		return failure(errors.New("content is required"))
	}
	accountSID := in.Credentials["account_sid"]
	authToken := in.Credentials["auth_token"]
	fromNumber := in.Credentials["from_number"]
	if accountSID == "" || authToken == "" || fromNumber == "" {
		return failure(errors.New("credential is missing account_sid, auth_token or from_number"))
	}
	if len(in.Payload.Recipients) == 0 {
		return failure(errors.New("sms requires at least one recipient"))
	}

	var (
		to       []string
		failures []string
	)
	for _, raw := range in.Payload.Recipients {
		normalized, err := NormalizePhoneNumber(raw)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", raw, err))
			continue
		}
		to = append(to, normalized)
	}

	sent := 0
	url := fmt.Sprintf("%s/accounts/%s/messages", a.baseURL, accountSID)
	headers := map[string]string{"Authorization": "Bearer " + authToken}

	for start := 0; start < len(to); start += a.batchSize {
		if start > 0 {
			if err := a.sleep(ctx, a.batchDelay); err != nil {
				return failure(err)
			}
		}
		end := min(start+a.batchSize, len(to))
		batch := to[start:end]

		for _, recipient := range batch {
			if _, err := postJSON(ctx, a.http, url, headers, map[string]string{
				"from": fromNumber,
				"to":   recipient,
				"body": in.Content.Caption,
			}, nil); err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", recipient, err))
				continue
			}
			sent++
		}
	}

	externalID := fmt.Sprintf("batch:%d", sent)
	if len(failures) > 0 {
		return &Result{
			Success:    false,
			ExternalID: externalID,
			Err: fmt.Errorf("%d of %d recipients failed: %s",
				len(failures), len(in.Payload.Recipients), strings.Join(failures, "; ")),
		}
	}
	if sent == 0 {
		return failure(errors.New("no messages were delivered"))
	}
	return success(externalID)
}

// NormalizePhoneNumber converts a recipient number to E.164. Bare 10-digit
// numbers are assumed domestic and prefixed with +1; an 11-digit number
// with a leading 1 gets a bare + prefix.
func NormalizePhoneNumber(raw string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	if cleaned == "" {
		return "", errors.New("empty number")
	}

	hasPlus := strings.HasPrefix(cleaned, "+")
	digits := strings.TrimPrefix(cleaned, "+")
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("invalid character %q", r)
		}
	}

	switch {
	case hasPlus && len(digits) >= 10:
		return "+" + digits, nil
	case len(digits) == 10:
		return "+1" + digits, nil
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits, nil
	default:
		return "", fmt.Errorf("cannot normalize %q to international format", raw)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ Adapter = (*SMSAdapter)(nil)
