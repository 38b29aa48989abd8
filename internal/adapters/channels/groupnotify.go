package channels

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/model"
)

// GroupNotifyOptions configures the group notification adapter.
type GroupNotifyOptions struct {
	// BaseURL is the notification relay API root.
	BaseURL string
	// ShareBaseURL is the public content URL the deep links point at.
	ShareBaseURL string
	HTTPClient   *http.Client
}

// GroupNotifyAdapter produces one deep-link notification artifact per
// target group. The platform does not allow direct group posting, so the
// artifact carries a share link the group owner opens to publish.
type GroupNotifyAdapter struct {
	baseURL      string
	shareBaseURL string
	http         *http.Client
}

// NewGroupNotifyAdapter constructs the group notification adapter.
func NewGroupNotifyAdapter(opts GroupNotifyOptions) *GroupNotifyAdapter {
	return &GroupNotifyAdapter{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		shareBaseURL: strings.TrimRight(opts.ShareBaseURL, "/"),
		http:         resolveClient(opts.HTTPClient),
	}
}

// Channel implements Adapter.
func (a *GroupNotifyAdapter) Channel() model.Channel { return model.ChannelGroupNotify }

// Validate implements Adapter.
func (a *GroupNotifyAdapter) Validate(job *model.DistributionJob) error {
	if job == nil {
		return errors.New("job is required")
	}
	payload, err := job.ChannelPayload()
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if len(payload.GroupIDs) == 0 {
		return errors.New("group notify requires at least one group id")
	}
	return nil
}

// Process implements Adapter. Success means every artifact was produced;
// each group gets its own deep link so failures name the groups missed.
func (a *GroupNotifyAdapter) Process(ctx context.Context, in *ProcessInput) *Result {
	if in == nil || in.Content == nil {
		return failure(errors.New("content is required"))
	}
	accessToken := in.Credentials["access_token"]
	if accessToken == "" {
		return failure(errors.New("credential is missing access_token"))
	}
	if len(in.Payload.GroupIDs) == 0 {
		return failure(errors.New("group notify requires at least one group id"))
	}

	headers := map[string]string{"Authorization": "Bearer " + accessToken}
	notified := 0
	var failures []string

	for _, groupID := range in.Payload.GroupIDs {
		deepLink := fmt.Sprintf("%s/share?content=%s&group=%s",
			a.shareBaseURL, url.QueryEscape(in.Content.ID), url.QueryEscape(groupID))

		if _, err := postJSON(ctx, a.http, a.baseURL+"/notifications", headers, map[string]string{
			"group_id":  groupID,
			"message":   in.Content.Caption,
			"deep_link": deepLink,
		}, nil); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", groupID, err))
			continue
		}
		notified++
	}

	externalID := fmt.Sprintf("notified:%d", notified)
	if len(failures) > 0 {
		return &Result{
			Success:    false,
			ExternalID: externalID,
			Err: fmt.Errorf("%d of %d groups failed: %s",
				len(failures), len(in.Payload.GroupIDs), strings.Join(failures, "; ")),
		}
	}
	return success(externalID)
}

var _ Adapter = (*GroupNotifyAdapter)(nil)
