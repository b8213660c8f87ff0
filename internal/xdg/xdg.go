// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package xdg locates adminauth files under the XDG Base Directory layout.
package xdg

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "adminauth"

// configFileName is the file looked up in ConfigDir when --config is not given.
const configFileName = "config.yaml"

// ConfigDir returns the XDG config directory for adminauth.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", oops.Code("XDG_HOME_UNKNOWN").Wrap(err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appName), nil
}

// ConfigFile returns the default configuration file path.
func ConfigFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// ResolveConfigFile returns explicit when set. Otherwise it returns the
// default configuration file if one exists, or "" to run on defaults.
func ResolveConfigFile(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	path, err := ConfigFile()
	if err != nil {
		// No home directory means no default file.
		return "", nil //nolint:nilerr // defaults apply
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", oops.Code("CONFIG_STAT_FAILED").With("path", path).Wrap(err)
	}
	return path, nil
}
