//go:build !windows

package config

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// openConfigFile opens the config file with O_NOFOLLOW to reject symlinks.
func openConfigFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|syscall.O_NOFOLLOW, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errConfigNotFound
		}
		if errors.Is(err, syscall.ELOOP) {
			return nil, ErrConfigSymlink
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	return f, nil
}

func checkFileOwnership(info os.FileInfo) error {
	if stat, ok := info.Sys().(*syscall.Stat_t); ok && stat.Uid != uint32(os.Getuid()) {
		return ErrConfigNotOwnedByUser
	}
	return nil
}
