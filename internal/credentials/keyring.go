// Package credentials keeps dashboard API tokens in the OS keychain.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	defaultService = "gameproto-dashboard"
	keyAPIToken    = "apitoken"
)

// ErrNotFound is returned when no token is stored for a profile.
var ErrNotFound = keyring.ErrNotFound

// KeyringStore wraps OS keychain with an optional file fallback.
// Fallback is intended for environments where no system keyring is available.
type KeyringStore struct {
	service      string
	fallbackPath string
	mu           sync.Mutex
}

// NewKeyringStore creates a keyring wrapper.
func NewKeyringStore(serviceName, fallbackPath string) *KeyringStore {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = defaultService
	}
	return &KeyringStore{
		service:      serviceName,
		fallbackPath: fallbackPath,
	}
}

// ProfileKey normalises an endpoint URL into a keyring profile name.
func ProfileKey(endpoint string) string {
	return strings.TrimRight(strings.TrimSpace(endpoint), "/")
}

func (k *KeyringStore) key(profile string) string {
	return fmt.Sprintf("%s/%s", profile, keyAPIToken)
}

// SetAPIToken stores the token for the given profile.
func (k *KeyringStore) SetAPIToken(profile, token string) error {
	profile = ProfileKey(profile)
	if profile == "" {
		return fmt.Errorf("credentials: profile is required")
	}

	if err := keyring.Set(k.service, k.key(profile), token); err == nil {
		return nil
	} else if !isKeyringUnavailable(err) {
		return fmt.Errorf("credentials: keyring set: %w", err)
	}

	return k.setFallback(profile, token)
}

// GetAPIToken returns the stored token, or ErrNotFound.
func (k *KeyringStore) GetAPIToken(profile string) (string, error) {
	profile = ProfileKey(profile)
	if profile == "" {
		return "", fmt.Errorf("credentials: profile is required")
	}

	val, err := keyring.Get(k.service, k.key(profile))
	if err == nil {
		return val, nil
	}
	if !isKeyringUnavailable(err) && !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("credentials: keyring get: %w", err)
	}

	fallback, ferr := k.getFallback(profile)
	if ferr == nil {
		return fallback, nil
	}

	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return "", ferr
}

// Delete removes the token for the profile from the keyring and the fallback file.
func (k *KeyringStore) Delete(profile string) error {
	profile = ProfileKey(profile)
	kerr := keyring.Delete(k.service, k.key(profile))
	ferr := k.deleteFallback(profile)
	if kerr != nil && !errors.Is(kerr, keyring.ErrNotFound) && !isKeyringUnavailable(kerr) {
		return fmt.Errorf("credentials: keyring delete: %w", kerr)
	}
	return ferr
}

func isKeyringUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "secret service") ||
		strings.Contains(msg, "dbus") ||
		strings.Contains(msg, "no keychain") ||
		strings.Contains(msg, "keyring backend not available")
}

// fallbackSecrets maps profile -> token.
type fallbackSecrets map[string]string

func (k *KeyringStore) setFallback(profile, token string) error {
	if strings.TrimSpace(k.fallbackPath) == "" {
		return fmt.Errorf("credentials: keyring unavailable and no fallback path configured")
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	data, err := k.readFallbackUnlocked()
	if err != nil {
		return err
	}
	data[profile] = token
	return k.writeFallbackUnlocked(data)
}

func (k *KeyringStore) getFallback(profile string) (string, error) {
	if strings.TrimSpace(k.fallbackPath) == "" {
		return "", fmt.Errorf("credentials: fallback path not configured")
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	data, err := k.readFallbackUnlocked()
	if err != nil {
		return "", err
	}
	val, ok := data[profile]
	if !ok {
		return "", ErrNotFound
	}
	return val, nil
}

func (k *KeyringStore) deleteFallback(profile string) error {
	if strings.TrimSpace(k.fallbackPath) == "" {
		return nil
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	data, err := k.readFallbackUnlocked()
	if err != nil {
		return err
	}
	if _, ok := data[profile]; !ok {
		return nil
	}
	delete(data, profile)
	return k.writeFallbackUnlocked(data)
}

func (k *KeyringStore) readFallbackUnlocked() (fallbackSecrets, error) {
	out := fallbackSecrets{}
	raw, err := os.ReadFile(k.fallbackPath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("credentials: read fallback secrets: %w", err)
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("credentials: decode fallback secrets: %w", err)
	}
	return out, nil
}

func (k *KeyringStore) writeFallbackUnlocked(data fallbackSecrets) error {
	dir := filepath.Dir(k.fallbackPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("credentials: mkdir fallback dir: %w", err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("credentials: encode fallback secrets: %w", err)
	}
	if err := os.WriteFile(k.fallbackPath, raw, 0o600); err != nil {
		return fmt.Errorf("credentials: write fallback secrets: %w", err)
	}
	return nil
}
