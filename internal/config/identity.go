package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// ErrNotConfigured is returned when no identity file exists yet.
var ErrNotConfigured = errors.New("agent not configured")

// Identity is one agent's durable configuration. It is written once at
// creation and read once at startup. WalletSecretKey must never be logged.
type Identity struct {
	Name            string    `json:"name"`
	GenesisPrompt   string    `json:"genesisPrompt"`
	CreatorAddress  string    `json:"creatorAddress"`
	WalletPublicKey string    `json:"walletPublicKey"`
	WalletSecretKey string    `json:"walletSecretKey"`
	RPCURL          string    `json:"rpcUrl"`
	APIKey          string    `json:"anthropicApiKey,omitempty"`
	Provider        string    `json:"provider,omitempty"`
	Parent          string    `json:"parent,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// ValidName reports whether name is usable as an agent name and as a single
// path component.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// LoadIdentity reads an identity file.
func LoadIdentity(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s not found", ErrNotConfigured, path)
		}
		return nil, fmt.Errorf("failed to read identity: %w", err)
	}

	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("failed to parse identity: %w", err)
	}
	if err := id.Validate(); err != nil {
		return nil, err
	}
	return &id, nil
}

// Save writes the identity with owner-only permissions.
func (id *Identity) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create identity directory: %w", err)
	}

	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write identity: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("failed to restrict identity permissions: %w", err)
	}
	return nil
}

// Validate checks required identity fields.
func (id *Identity) Validate() error {
	switch {
	case !ValidName(id.Name):
		return fmt.Errorf("invalid identity name %q", id.Name)
	case id.WalletPublicKey == "":
		return errors.New("identity has no wallet public key")
	case id.WalletSecretKey == "":
		return errors.New("identity has no wallet secret key")
	case id.RPCURL == "":
		return errors.New("identity has no rpc url")
	}
	return nil
}

// String never includes key material.
func (id Identity) String() string {
	return fmt.Sprintf("%s (%s)", id.Name, id.WalletPublicKey)
}

// GoString keeps %#v from printing the secret key.
func (id Identity) GoString() string {
	return fmt.Sprintf("config.Identity{Name:%q, WalletPublicKey:%q}", id.Name, id.WalletPublicKey)
}
