package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/data/cryptoutil"
)

// insecureDevKey keeps local development bootable without a configured
// key. It is only ever used when dev mode is explicitly enabled.
const insecureDevKey = "marketpeak-insecure-dev-key"

// ErrEncryptionKeyRequired indicates CREDENTIAL_ENCRYPTION_KEY is unset
// outside development mode.
var ErrEncryptionKeyRequired = errors.New(
	"CREDENTIAL_ENCRYPTION_KEY is required; set DEV=true to use the insecure development key")

// CreateVault creates the AES-GCM credential vault from the configured key.
// A 64-char hex string decodes to the raw 32-byte key; any other non-empty
// string is hashed to derive one. An empty key is a startup error unless
// allowInsecureDev is set, in which case a fixed development key is used
// with a warning.
func CreateVault(key string, allowInsecureDev bool, logger *slog.Logger) (*cryptoutil.Vault, error) {
	if key == "" {
		if !allowInsecureDev {
			return nil, ErrEncryptionKeyRequired
		}
		if logger != nil {
			logger.Warn("credential encryption key is empty, using insecure development key")
		}
		key = insecureDevKey
	}

	vault, err := cryptoutil.NewVaultFromKeyString(key)
	if err != nil {
		return nil, fmt.Errorf("create credential vault: %w", err)
	}
	return vault, nil
}
