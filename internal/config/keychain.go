package config

import (
	"errors"
	"fmt"
)

// ErrNoToken is returned when no bearer credential has been stored yet.
var ErrNoToken = errors.New("no auth token stored")

const (
	keychainService = "primer"
	tokenAccount    = "auth_token"
)

// Keychain stores the backend bearer credential in the platform secret store:
// macOS Keychain via the security CLI, or a 0600 JSON file under
// $XDG_DATA_HOME/primer elsewhere.
type Keychain struct {
	service string
}

// NewKeychain returns a Keychain bound to the primer service entry.
func NewKeychain() *Keychain {
	return &Keychain{service: keychainService}
}

// Token returns the stored bearer credential or ErrNoToken.
func (k *Keychain) Token() (string, error) {
	tok, err := keychainGet(k.service, tokenAccount)
	if err != nil {
		if errors.Is(err, ErrNoToken) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("reading auth token: %w", err)
	}
	return tok, nil
}

// SetToken replaces the stored bearer credential.
func (k *Keychain) SetToken(token string) error {
	if token == "" {
		return k.ClearToken()
	}
	if err := keychainSet(k.service, tokenAccount, token); err != nil {
		return fmt.Errorf("storing auth token: %w", err)
	}
	return nil
}

// ClearToken removes the stored bearer credential. Clearing an absent token is not an error.
func (k *Keychain) ClearToken() error {
	if err := keychainDelete(k.service, tokenAccount); err != nil {
		return fmt.Errorf("clearing auth token: %w", err)
	}
	return nil
}
