package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialFieldsValidate(t *testing.T) {
	tests := []struct {
		name    string
		channel Channel
		fields  CredentialFields
		wantErr string
	}{
		{
			name:    "social complete",
			channel: ChannelSocial,
			fields:  CredentialFields{"access_token": "tok", "refresh_token": "ref"},
		},
		{
			name:    "social missing refresh",
			channel: ChannelSocial,
			fields:  CredentialFields{"access_token": "tok"},
			wantErr: "refresh_token",
		},
		{
			name:    "sms complete",
			channel: ChannelSMS,
			fields:  CredentialFields{"account_sid": "AC1", "auth_token": "t", "from_number": "+15555550100"},
		},
		{
			name:    "sms all missing reported together",
			channel: ChannelSMS,
			fields:  CredentialFields{},
			wantErr: "account_sid, auth_token, from_number",
		},
		{
			name:    "whitespace counts as missing",
			channel: ChannelEmail,
			fields:  CredentialFields{"api_key": "  ", "from_email": "a@b.co"},
			wantErr: "api_key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fields.Validate(tt.channel)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveCredentialRequestValidate(t *testing.T) {
	req := SaveCredentialRequest{
		BusinessID: "biz-1",
		Channel:    ChannelEmail,
		Fields:     CredentialFields{"api_key": "k", "from_email": "a@b.co"},
	}
	require.NoError(t, req.Validate())

	req.Channel = "unknown"
	assert.Error(t, req.Validate())
}
