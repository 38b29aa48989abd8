package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrCredentialNotFound is returned when no credential exists for a
// (business, channel) pair.
var ErrCredentialNotFound = errors.New("credential not found")

// ChannelCredential is one stored credential record. Payload holds only
// ciphertext; plaintext secret material never leaves the vault boundary.
type ChannelCredential struct {
	ID               string    `json:"id"                db:"id"`
	BusinessID       string    `json:"business_id"       db:"business_id"`
	Channel          Channel   `json:"channel"           db:"channel"`
	EncryptedPayload string    `json:"-"                 db:"encrypted_payload"`
	CreatedAt        time.Time `json:"created_at"        db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"        db:"updated_at"`
}

// CredentialSummary is the listing projection of a credential. It
// deliberately omits all payload material.
type CredentialSummary struct {
	ID        string    `json:"id"         db:"id"`
	Channel   Channel   `json:"channel"    db:"channel"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CredentialFields is the decrypted, channel-specific secret payload.
type CredentialFields map[string]string

// RequiredCredentialFields enumerates the plaintext fields each channel needs.
func RequiredCredentialFields(c Channel) []string {
	switch c {
	case ChannelSocial:
		return []string{"access_token", "refresh_token"}
	case ChannelBusinessListing:
		return []string{"api_key", "location_id"}
	case ChannelSMS:
		return []string{"account_sid", "auth_token", "from_number"}
	case ChannelEmail:
		return []string{"api_key", "from_email"}
	case ChannelGroupNotify:
		return []string{"access_token", "group_ids"}
	default:
		return nil
	}
}

// Validate checks that every required field for the channel is present and
// non-empty. Missing fields are reported together, sorted for stable output.
func (f CredentialFields) Validate(c Channel) error {
	var missing []string
	for _, name := range RequiredCredentialFields(c) {
		if strings.TrimSpace(f[name]) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing required fields for %s: %s", c, strings.Join(missing, ", "))
	}
	return nil
}

// SaveCredentialRequest is the intake shape for creating or replacing a
// credential record.
type SaveCredentialRequest struct {
	BusinessID string
	Channel    Channel
	Fields     CredentialFields
}

// Validate validates the SaveCredentialRequest fields.
func (r *SaveCredentialRequest) Validate() error {
	if strings.TrimSpace(r.BusinessID) == "" {
		return errors.New("business id is required")
	}
	if !r.Channel.Valid() {
		return fmt.Errorf("invalid channel: %q", r.Channel)
	}
	return r.Fields.Validate(r.Channel)
}
