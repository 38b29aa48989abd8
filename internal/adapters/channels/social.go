package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/core"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/model"
)

// SocialOptions configures the social adapter.
type SocialOptions struct {
	// BaseURL is the platform API root, e.g. https://graph.example.com/v1.
	BaseURL string
	// TokenURL is the OAuth2 token endpoint used to refresh expired pairs.
	TokenURL     string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
	// Credentials persists refreshed tokens back through the vault.
	Credentials core.CredentialWriter
	Logger      *slog.Logger
}

// SocialAdapter posts content to the social platform. An optional image is
// uploaded first and referenced from the post.
type SocialAdapter struct {
	baseURL      string
	tokenURL     string
	clientID     string
	clientSecret string
	http         *http.Client
	credentials  core.CredentialWriter
	logger       *slog.Logger
}

// NewSocialAdapter constructs the social adapter.
func NewSocialAdapter(opts SocialOptions) *SocialAdapter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SocialAdapter{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		tokenURL:     opts.TokenURL,
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		http:         resolveClient(opts.HTTPClient),
		credentials:  opts.Credentials,
		logger:       logger,
	}
}

// Channel implements Adapter.
func (a *SocialAdapter) Channel() model.Channel { return model.ChannelSocial }

// Validate implements Adapter.
func (a *SocialAdapter) Validate(job *model.DistributionJob) error {
	if job == nil {
		return errors.New("job is required")
	}
	return nil
}

// Process implements Adapter. On a 401 from the platform the token pair is
// refreshed, persisted, and the delivery retried once.
func (a *SocialAdapter) Process(ctx context.Context, in *ProcessInput) *Result {
	if in == nil || in.Content == nil {
		return failure(errors.New("content is required"))
	}
	accessToken := in.Credentials["access_token"]
	if accessToken == "" {
		return failure(errors.New("credential is missing access_token"))
	}

	postID, status, err := a.deliver(ctx, in, accessToken)
	if err == nil {
		return success(postID)
	}
	if status != http.StatusUnauthorized {
		return failure(err)
	}

	refreshed, refreshErr := a.refreshCredential(ctx, in)
	if refreshErr != nil {
		return failure(fmt.Errorf("token refresh after 401: %w", refreshErr))
	}

	postID, _, err = a.deliver(ctx, in, refreshed)
	if err != nil {
		return failure(fmt.Errorf("retry after token refresh: %w", err))
	}
	return success(postID)
}

// deliver uploads the optional image and creates the post. Returns the
// provider post id and the last HTTP status observed.
func (a *SocialAdapter) deliver(
	ctx context.Context,
	in *ProcessInput,
	accessToken string,
) (string, int, error) {
	headers := map[string]string{"Authorization": "Bearer " + accessToken}

	var mediaID string
	if in.Content.ImageURL != nil && *in.Content.ImageURL != "" {
		var mediaResp struct {
			ID string `json:"id"`
		}
		status, err := postJSON(ctx, a.http, a.baseURL+"/media", headers, map[string]string{
			"image_url": *in.Content.ImageURL,
			"caption":   in.Content.Caption,
		}, &mediaResp)
		if err != nil {
			return "", status, fmt.Errorf("upload media: %w", err)
		}
		mediaID = mediaResp.ID
	}

	body := map[string]string{"caption": in.Content.Caption}
	if mediaID != "" {
		body["media_id"] = mediaID
	}
	var postResp struct {
		ID string `json:"id"`
	}
	status, err := postJSON(ctx, a.http, a.baseURL+"/posts", headers, body, &postResp)
	if err != nil {
		return "", status, fmt.Errorf("create post: %w", err)
	}
	return postResp.ID, status, nil
}

// refreshCredential exchanges the stored refresh token for a new pair and
// writes it back through the vault so subsequent jobs see the fresh pair.
func (a *SocialAdapter) refreshCredential(ctx context.Context, in *ProcessInput) (string, error) {
	refreshToken := in.Credentials["refresh_token"]
	if refreshToken == "" {
		return "", errors.New("credential is missing refresh_token")
	}

	conf := &oauth2.Config{
		ClientID:     a.clientID,
		ClientSecret: a.clientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: a.tokenURL},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.http)
	token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return "", fmt.Errorf("exchange refresh token: %w", err)
	}

	fields := model.CredentialFields{
		"access_token":  token.AccessToken,
		"refresh_token": token.RefreshToken,
	}
	if fields["refresh_token"] == "" {
		// Providers may omit the refresh token on rotation; keep the old one.
		fields["refresh_token"] = refreshToken
	}

	if a.credentials != nil && in.Job != nil {
		if _, saveErr := a.credentials.Save(ctx, model.SaveCredentialRequest{
			BusinessID: in.Job.BusinessID,
			Channel:    model.ChannelSocial,
			Fields:     fields,
		}); saveErr != nil {
			a.logger.WarnContext(ctx, "persist refreshed social token",
				"business_id", in.Job.BusinessID, "error", saveErr)
		}
	}
	return token.AccessToken, nil
}

var _ Adapter = (*SocialAdapter)(nil)
