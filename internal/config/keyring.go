package config

import (
	"errors"
	"log/slog"

	"github.com/zalando/go-keyring"
)

// KeyringService is the OS keyring service name for stored API keys.
const KeyringService = "researcher"

// StoreAPIKey saves a provider API key in the OS keyring.
func StoreAPIKey(kind, key string) error {
	return keyring.Set(KeyringService, NormalizeProviderKind(kind), key)
}

// LookupAPIKey reads a provider API key from the OS keyring. It returns ""
// and no error when nothing is stored.
func LookupAPIKey(kind string) (string, error) {
	key, err := keyring.Get(KeyringService, NormalizeProviderKind(kind))
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	return key, err
}

// FillAPIKeyFromKeyring uses the keyring entry when neither the file nor the
// environment provided a key. Keyring failures are logged, not returned:
// headless hosts often have no secret service.
func (c *Config) FillAPIKeyFromKeyring() {
	if c.Provider.APIKey != "" {
		return
	}
	key, err := LookupAPIKey(c.Provider.Kind)
	if err != nil {
		slog.Debug("keyring lookup failed", "provider", c.Provider.Kind, "error", err)
		return
	}
	if key != "" {
		c.Provider.APIKey = key
		slog.Debug("api key loaded from keyring", "provider", c.Provider.Kind)
	}
}
