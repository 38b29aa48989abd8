package channels

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/model"
)

// ListingOptions configures the business listing adapter.
type ListingOptions struct {
	// BaseURL is the listing API root.
	BaseURL    string
	HTTPClient *http.Client
}

// ListingAdapter publishes content as a local post on the business listing.
type ListingAdapter struct {
	baseURL string
	http    *http.Client
}

// NewListingAdapter constructs the business listing adapter.
func NewListingAdapter(opts ListingOptions) *ListingAdapter {
	return &ListingAdapter{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    resolveClient(opts.HTTPClient),
	}
}

// Channel implements Adapter.
func (a *ListingAdapter) Channel() model.Channel { return model.ChannelBusinessListing }

// Validate implements Adapter.
func (a *ListingAdapter) Validate(job *model.DistributionJob) error {
	if job == nil {
		return errors.New("job is required")
	}
	return nil
}

// Process implements Adapter.
func (a *ListingAdapter) Process(ctx context.Context, in *ProcessInput) *Result {
	if in == nil || in.Content == nil {
		return failure(errors.New("content is required"))
	}
	apiKey := in.Credentials["api_key"]
	locationID := in.Credentials["location_id"]
	if apiKey == "" || locationID == "" {
		return failure(errors.New("credential is missing api_key or location_id"))
	}

	body := map[string]any{
		"summary":      in.Content.Caption,
		"languageCode": "en-US",
		"topicType":    "STANDARD",
	}
	if in.Content.ImageURL != nil && *in.Content.ImageURL != "" {
		body["media"] = []map[string]string{{
			"mediaFormat": "PHOTO",
			"sourceUrl":   *in.Content.ImageURL,
		}}
	}

	var resp struct {
		Name string `json:"name"`
	}
	url := fmt.Sprintf("%s/locations/%s/localPosts", a.baseURL, locationID)
	if _, err := postJSON(ctx, a.http, url, map[string]string{
		"Authorization": "Bearer " + apiKey,
	}, body, &resp); err != nil {
		return failure(fmt.Errorf("create local post: %w", err))
	}
	return success(resp.Name)
}

var _ Adapter = (*ListingAdapter)(nil)
