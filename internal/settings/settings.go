// Package settings remembers the caller's last choices between runs.
//
// The generation pipeline never reads or writes settings; only the CLI does.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Keys stored in the settings file.
const (
	KeyLastTemplate  = "last_template"
	KeyLastDatasheet = "last_datasheet"
	KeyLastSuffix    = "last_suffix"
)

// Settings holds the remembered values.
type Settings struct {
	LastTemplate  string
	LastDatasheet string
	LastSuffix    string
}

// Store is a settings file.
type Store struct {
	path string
	v    *viper.Viper
}

// DefaultPath returns $XDG_CONFIG_HOME/mailmerge/settings.yaml, or the
// platform equivalent.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config directory: %w", err)
	}
	return filepath.Join(dir, "mailmerge", "settings.yaml"), nil
}

// Open reads the settings file at path. A missing file is not an error.
// Environment variables such as MAILMERGE_LAST_TEMPLATE override file values.
func Open(path string) (*Store, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("MAILMERGE")
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	return &Store{path: path, v: v}, nil
}

// Path returns the settings file path.
func (s *Store) Path() string { return s.path }

// Load returns the current values.
func (s *Store) Load() Settings {
	return Settings{
		LastTemplate:  s.v.GetString(KeyLastTemplate),
		LastDatasheet: s.v.GetString(KeyLastDatasheet),
		LastSuffix:    s.v.GetString(KeyLastSuffix),
	}
}

// Save writes values to the settings file, creating its directory.
func (s *Store) Save(values Settings) error {
	s.v.Set(KeyLastTemplate, values.LastTemplate)
	s.v.Set(KeyLastDatasheet, values.LastDatasheet)
	s.v.Set(KeyLastSuffix, values.LastSuffix)

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	return nil
}
