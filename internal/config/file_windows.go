//go:build windows

package config

import (
	"fmt"
	"os"
)

// openConfigFile opens the config file. Windows has no O_NOFOLLOW and
// creating symlinks there needs special privileges.
func openConfigFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errConfigNotFound
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	return f, nil
}

// checkFileOwnership is a no-op: Windows ownership lives in ACLs.
func checkFileOwnership(_ os.FileInfo) error {
	return nil
}
