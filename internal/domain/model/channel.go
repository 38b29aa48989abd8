// Package model defines the core data types shared across the market peak
// distribution and research system.
package model

import (
	"fmt"
	"strings"
)

// Channel identifies one external distribution target.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type Channel string

const (
	// ChannelSocial posts to the social platform feed.
	ChannelSocial Channel = "social"
	// ChannelBusinessListing posts to the business listing platform.
	ChannelBusinessListing Channel = "business-listing"
	// ChannelSMS sends batched text messages.
	ChannelSMS Channel = "sms"
	// ChannelEmail sends a transactional email campaign.
	ChannelEmail Channel = "email"
	// ChannelGroupNotify produces manual-action notifications for groups.
	ChannelGroupNotify Channel = "group-notify"
)

// AllChannels returns the closed set of supported channels.
func AllChannels() []Channel {
	return []Channel{
		ChannelSocial,
		ChannelBusinessListing,
		ChannelSMS,
		ChannelEmail,
		ChannelGroupNotify,
	}
}

// Valid returns true if the Channel is one of the supported targets.
func (c Channel) Valid() bool {
	switch c {
	case ChannelSocial, ChannelBusinessListing, ChannelSMS, ChannelEmail, ChannelGroupNotify:
		return true
	default:
		return false
	}
}

// UnmarshalText implements encoding.TextUnmarshaler so channels can be parsed
// from env vars and request bodies.
func (c *Channel) UnmarshalText(text []byte) error {
	v := Channel(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid channel: %q", string(text))
	}
	*c = v
	return nil
}

// ParseChannel converts a raw string into a Channel.
func ParseChannel(s string) (Channel, error) {
	var c Channel
	if err := c.UnmarshalText([]byte(s)); err != nil {
		return "", err
	}
	return c, nil
}
