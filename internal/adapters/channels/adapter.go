// Package channels contains the delivery adapters behind the distribution
// dispatcher. Each adapter owns one channel's provider protocol; the worker
// loop stays channel-agnostic.
package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/model"
)

const maxProviderBodyBytes = 4 * 1024

// ProcessInput carries everything an adapter needs to deliver one job: the
// job row, the content being distributed, the decrypted credential and the
// channel-specific payload.
type ProcessInput struct {
	Job         *model.DistributionJob
	Content     *model.ContentItem
	Credentials model.CredentialFields
	Payload     model.ChannelPayload
}

// Result is an adapter's structured outcome. Adapters never panic; provider
// failures come back as Err with Success false.
type Result struct {
	Success    bool
	ExternalID string
	Err        error
}

func failure(err error) *Result {
	return &Result{Success: false, Err: err}
}

func failuref(format string, args ...any) *Result {
	return failure(fmt.Errorf(format, args...))
}

func success(externalID string) *Result {
	return &Result{Success: true, ExternalID: externalID}
}

// Adapter delivers distribution jobs for a single channel.
type Adapter interface {
	Channel() model.Channel
	Validate(job *model.DistributionJob) error
	Process(ctx context.Context, in *ProcessInput) *Result
}

// Registry holds the adapter set, keyed by channel. Built once at startup.
type Registry struct {
	adapters map[model.Channel]Adapter
}

// NewRegistry builds a registry from the given adapters. Duplicate channels
// are a wiring bug and return an error.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[model.Channel]Adapter, len(adapters))}
	for _, a := range adapters {
		if a == nil {
			return nil, errors.New("nil adapter")
		}
		ch := a.Channel()
		if _, dup := r.adapters[ch]; dup {
			return nil, fmt.Errorf("duplicate adapter for channel %q", ch)
		}
		r.adapters[ch] = a
	}
	return r, nil
}

// For returns the adapter for a channel, or an error for unknown channels.
func (r *Registry) For(ch model.Channel) (Adapter, error) {
	a, ok := r.adapters[ch]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for channel %q", ch)
	}
	return a, nil
}

// Channels returns the registered channel set.
func (r *Registry) Channels() []model.Channel {
	out := make([]model.Channel, 0, len(r.adapters))
	for ch := range r.adapters {
		out = append(out, ch)
	}
	return out
}

func resolveClient(hc *http.Client) *http.Client {
	if hc != nil {
		return hc
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// postJSON sends a JSON body and decodes a JSON response into out (when out
// is non-nil). Non-2xx statuses are returned as errors carrying a truncated
// response body.
func postJSON(
	ctx context.Context,
	hc *http.Client,
	url string,
	headers map[string]string,
	body any,
	out any,
) (int, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderBodyBytes))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf(
			"unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
