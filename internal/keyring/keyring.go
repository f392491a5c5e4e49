// Package keyring caches master passwords in the OS keyring.
package keyring

import (
	"errors"

	"github.com/zalando/go-keyring"
)

const serviceName = "vaultsync"

// ErrNotFound is returned when no password is stored for an account.
var ErrNotFound = errors.New("keyring: no password stored")

// SavePassword stores the master password for account.
func SavePassword(account, password string) error {
	return keyring.Set(serviceName, account, password)
}

// GetPassword retrieves the master password for account.
func GetPassword(account string) (string, error) {
	password, err := keyring.Get(serviceName, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return password, err
}

// DeletePassword removes the master password for account.
func DeletePassword(account string) error {
	err := keyring.Delete(serviceName, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// HasPassword reports whether a password is stored for account.
func HasPassword(account string) bool {
	_, err := keyring.Get(serviceName, account)
	return err == nil
}
