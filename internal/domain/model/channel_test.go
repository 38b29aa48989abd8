package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChannel(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Channel
		wantErr bool
	}{
		{name: "social", input: "social", want: ChannelSocial},
		{name: "listing", input: "business-listing", want: ChannelBusinessListing},
		{name: "sms uppercase", input: "SMS", want: ChannelSMS},
		{name: "email padded", input: "  email ", want: ChannelEmail},
		{name: "group notify", input: "group-notify", want: ChannelGroupNotify},
		{name: "unknown", input: "carrier-pigeon", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseChannel(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAllChannelsValid(t *testing.T) {
	for _, c := range AllChannels() {
		assert.True(t, c.Valid(), "channel %s should be valid", c)
	}
	assert.False(t, Channel("fax").Valid())
}
