package channels

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/model"
)

func TestRegistry_ForLooksUpByChannel(t *testing.T) {
	sms := NewSMSAdapter(SMSOptions{BaseURL: "http://unused"})
	email := NewEmailAdapter(EmailOptions{BaseURL: "http://unused"})

	reg, err := NewRegistry(sms, email)
	require.NoError(t, err)

	got, err := reg.For(model.ChannelSMS)
	require.NoError(t, err)
	assert.Same(t, Adapter(sms), got)

	_, err = reg.For(model.ChannelSocial)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "social")

	assert.ElementsMatch(t, []model.Channel{model.ChannelSMS, model.ChannelEmail}, reg.Channels())
}

func TestRegistry_RejectsDuplicateChannel(t *testing.T) {
	_, err := NewRegistry(
		NewSMSAdapter(SMSOptions{BaseURL: "http://a"}),
		NewSMSAdapter(SMSOptions{BaseURL: "http://b"}),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestEmailAdapter_SendsBatch(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/send", r.URL.Path)
		require.Equal(t, "Bearer email-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]string{"message_id": "msg-42"})
	}))
	defer srv.Close()

	adapter := NewEmailAdapter(EmailOptions{BaseURL: srv.URL, HTTPClient: srv.Client()})
	res := adapter.Process(context.Background(), &ProcessInput{
		Job:         &model.DistributionJob{ID: "job-1", BusinessID: "biz-1"},
		Content:     &model.ContentItem{ID: "content-1", Caption: "spring sale"},
		Credentials: model.CredentialFields{"api_key": "email-key", "from_email": "store@example.com"},
		Payload: model.ChannelPayload{
			Recipients: []string{"a@example.com", "b@example.com"},
			Subject:    "Spring Sale",
			FromName:   "The Store",
		},
	})
	require.NotNil(t, res)
	require.NoError(t, res.Err)
	assert.True(t, res.Success)
	assert.Equal(t, "msg-42", res.ExternalID)

	from, ok := got["from"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "store@example.com", from["email"])
	assert.Equal(t, "Spring Sale", got["subject"])
}

func TestEmailAdapter_RequiresSubjectAndRecipients(t *testing.T) {
	adapter := NewEmailAdapter(EmailOptions{BaseURL: "http://unused"})

	tests := []struct {
		name    string
		payload model.ChannelPayload
	}{
		{name: "no recipients", payload: model.ChannelPayload{Subject: "hi"}},
		{name: "no subject", payload: model.ChannelPayload{Recipients: []string{"a@example.com"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := adapter.Process(context.Background(), &ProcessInput{
				Content:     &model.ContentItem{Caption: "x"},
				Credentials: model.CredentialFields{"api_key": "k", "from_email": "s@example.com"},
				Payload:     tt.payload,
			})
			require.NotNil(t, res)
			assert.False(t, res.Success)
			require.Error(t, res.Err)
		})
	}
}

func TestGroupNotifyAdapter_ProducesArtifactPerGroup(t *testing.T) {
	var links []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/notifications", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		links = append(links, body["deep_link"])
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	adapter := NewGroupNotifyAdapter(GroupNotifyOptions{
		BaseURL:      srv.URL,
		ShareBaseURL: "https://app.example.com",
		HTTPClient:   srv.Client(),
	})
	res := adapter.Process(context.Background(), &ProcessInput{
		Job:         &model.DistributionJob{ID: "job-1", BusinessID: "biz-1"},
		Content:     &model.ContentItem{ID: "content-1", Caption: "open house"},
		Credentials: model.CredentialFields{"access_token": "tok"},
		Payload:     model.ChannelPayload{GroupIDs: []string{"g1", "g2", "g3"}},
	})
	require.NotNil(t, res)
	require.NoError(t, res.Err)
	assert.True(t, res.Success)
	assert.Equal(t, "notified:3", res.ExternalID)

	require.Len(t, links, 3)
	assert.Contains(t, links[0], "content=content-1")
	assert.Contains(t, links[0], "group=g1")
}

func TestGroupNotifyAdapter_PartialFailureListsGroups(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["group_id"] == "g2" {
			http.Error(w, `{"error":"group not found"}`, http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	adapter := NewGroupNotifyAdapter(GroupNotifyOptions{
		BaseURL:      srv.URL,
		ShareBaseURL: "https://app.example.com",
		HTTPClient:   srv.Client(),
	})
	res := adapter.Process(context.Background(), &ProcessInput{
		Content:     &model.ContentItem{ID: "content-1", Caption: "x"},
		Credentials: model.CredentialFields{"access_token": "tok"},
		Payload:     model.ChannelPayload{GroupIDs: []string{"g1", "g2"}},
	})
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Equal(t, "notified:1", res.ExternalID)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "g2")
}

func TestListingAdapter_CreatesLocalPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/locations/loc-5/localPosts", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "grand opening", body["summary"])
		_ = json.NewEncoder(w).Encode(map[string]string{"name": "localPosts/abc"})
	}))
	defer srv.Close()

	adapter := NewListingAdapter(ListingOptions{BaseURL: srv.URL, HTTPClient: srv.Client()})
	res := adapter.Process(context.Background(), &ProcessInput{
		Content:     &model.ContentItem{ID: "content-1", Caption: "grand opening"},
		Credentials: model.CredentialFields{"api_key": "k", "location_id": "loc-5"},
	})
	require.NotNil(t, res)
	require.NoError(t, res.Err)
	assert.True(t, res.Success)
	assert.Equal(t, "localPosts/abc", res.ExternalID)
}
