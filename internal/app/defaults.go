package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Defaults are the paths sk uses before any config file is read.
type Defaults struct {
	ConfigPath string // the TOML config file
	BaseDir    string // root of the metadata store, backups and logs
	LogDir     string
}

// GetDefaults resolves the default paths. Each path is taken from the first
// source that is set:
//   - config: SK_CONFIG_PATH, $XDG_CONFIG_HOME/sk.toml, ~/.config/sk.toml
//   - base:   SK_HOME, $XDG_DATA_HOME/sk, ~/.local/share/sk
//
// The log directory is always <base>/log.
func GetDefaults() (*Defaults, error) {
	configPath, err := resolvePath("SK_CONFIG_PATH", "XDG_CONFIG_HOME", "sk.toml", ".config")
	if err != nil {
		return nil, err
	}

	baseDir, err := resolvePath("SK_HOME", "XDG_DATA_HOME", "sk", ".local", "share")
	if err != nil {
		return nil, err
	}

	return &Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
	}, nil
}

// resolvePath returns $override, else $xdgVar/name, else ~/<homeParts...>/name.
func resolvePath(override, xdgVar, name string, homeParts ...string) (string, error) {
	if path := os.Getenv(override); path != "" {
		return path, nil
	}
	if dir := os.Getenv(xdgVar); dir != "" {
		return filepath.Join(dir, name), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append(append([]string{homeDir}, homeParts...), name)...), nil
}
