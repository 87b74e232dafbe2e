// Package security provides credential handling for crestctl.
package security

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zalando/go-keyring"
)

// KeyringService is the service name used for keyring entries.
const KeyringService = "crestctl"

// KeyringStore stores device passwords in the OS keyring (macOS Keychain,
// Linux Secret Service, Windows Credential Manager). When the keyring is
// unavailable the store is disabled and callers fall back to environment
// variables or interactive entry.
type KeyringStore struct {
	enabled bool
	mu      sync.RWMutex
}

// NewKeyringStore probes the system keyring and returns a store.
func NewKeyringStore() *KeyringStore {
	ks := &KeyringStore{enabled: true}

	const probe = "__crestctl_probe__"
	if err := keyring.Set(KeyringService, probe, "probe"); err != nil {
		slog.Debug("keyring not available",
			slog.String("error", err.Error()),
		)
		ks.enabled = false
		return ks
	}
	_ = keyring.Delete(KeyringService, probe)

	slog.Debug("keyring storage enabled")
	return ks
}

// IsEnabled reports whether the keyring is usable.
func (ks *KeyringStore) IsEnabled() bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.enabled
}

func deviceKey(host, user string) string {
	return fmt.Sprintf("device:%s@%s", user, host)
}

// StoreDevicePassword stores a device console password.
func (ks *KeyringStore) StoreDevicePassword(host, user string, password []byte) error {
	if !ks.IsEnabled() {
		return fmt.Errorf("keyring not available")
	}

	encoded := base64.StdEncoding.EncodeToString(password)
	if err := keyring.Set(KeyringService, deviceKey(host, user), encoded); err != nil {
		return fmt.Errorf("store device password: %w", err)
	}

	slog.Debug("stored device password in keyring",
		slog.String("user", user),
		slog.String("host", host),
	)
	return nil
}

// GetDevicePassword retrieves a device console password. A missing entry is
// (nil, nil), not an error.
func (ks *KeyringStore) GetDevicePassword(host, user string) ([]byte, error) {
	if !ks.IsEnabled() {
		return nil, fmt.Errorf("keyring not available")
	}

	encoded, err := keyring.Get(KeyringService, deviceKey(host, user))
	if err != nil {
		if err == keyring.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get device password: %w", err)
	}

	password, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode device password: %w", err)
	}
	return password, nil
}

// DeleteDevicePassword removes a device console password.
func (ks *KeyringStore) DeleteDevicePassword(host, user string) error {
	if !ks.IsEnabled() {
		return fmt.Errorf("keyring not available")
	}

	if err := keyring.Delete(KeyringService, deviceKey(host, user)); err != nil {
		if err == keyring.ErrNotFound {
			return nil
		}
		return fmt.Errorf("delete device password: %w", err)
	}
	return nil
}
