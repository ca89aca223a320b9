package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/surge-downloader/ferry/internal/engine/types"
)

type GeneralSettings struct {
	DefaultDownloadDir string `yaml:"default_download_dir"`
	WarnOnDuplicate    bool   `yaml:"warn_on_duplicate"`
}

type NetworkSettings struct {
	UserAgent    string        `yaml:"user_agent"`
	ChunkSize    int           `yaml:"chunk_size"`
	SpeedLimit   int64         `yaml:"speed_limit"` // bytes per second, 0 = unlimited
	RateWindow   int           `yaml:"rate_window"` // seconds
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

type LoggingSettings struct {
	Debug    bool `yaml:"debug"`
	KeepLogs int  `yaml:"keep_logs"`
}

type UISettings struct {
	RefreshRate time.Duration `yaml:"refresh_rate"`
}

// Settings is the on-disk configuration at GetSettingsPath()
type Settings struct {
	General GeneralSettings `yaml:"general"`
	Network NetworkSettings `yaml:"network"`
	Logging LoggingSettings `yaml:"logging"`
	UI      UISettings      `yaml:"ui"`
}

func DefaultSettings() *Settings {
	return &Settings{
		General: GeneralSettings{
			WarnOnDuplicate: true,
		},
		Network: NetworkSettings{
			UserAgent:    types.DefaultUserAgent,
			ChunkSize:    types.ChunkSize,
			RateWindow:   types.DefaultRateWindow,
			ProbeTimeout: types.ProbeTimeout,
		},
		Logging: LoggingSettings{
			KeepLogs: 5,
		},
		UI: UISettings{
			RefreshRate: 50 * time.Millisecond,
		},
	}
}

// Validate rejects values that would make the engine misbehave
func (s *Settings) Validate() error {
	var errs []error
	if s.UI.RefreshRate <= 0 {
		errs = append(errs, fmt.Errorf("ui.refresh_rate must be positive, got %v", s.UI.RefreshRate))
	}
	if s.Network.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("network.chunk_size must not be negative, got %d", s.Network.ChunkSize))
	}
	if s.Network.RateWindow < 0 {
		errs = append(errs, fmt.Errorf("network.rate_window must not be negative, got %d", s.Network.RateWindow))
	}
	if s.Network.SpeedLimit < 0 {
		errs = append(errs, fmt.Errorf("network.speed_limit must not be negative, got %d", s.Network.SpeedLimit))
	}
	if s.Logging.KeepLogs < 0 {
		errs = append(errs, fmt.Errorf("logging.keep_logs must not be negative, got %d", s.Logging.KeepLogs))
	}
	return errors.Join(errs...)
}

// LoadSettings reads the settings file. A missing file yields the defaults;
// keys absent from the file keep their default values.
func LoadSettings() (*Settings, error) {
	return LoadSettingsFrom(GetSettingsPath())
}

func LoadSettingsFrom(path string) (*Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return settings, nil
}

func SaveSettings(s *Settings) error {
	return SaveSettingsTo(GetSettingsPath(), s)
}

func SaveSettingsTo(path string, s *Settings) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// ToRuntimeConfig extracts what the transfer engine needs
func (s *Settings) ToRuntimeConfig() *types.RuntimeConfig {
	return &types.RuntimeConfig{
		UserAgent:    s.Network.UserAgent,
		ChunkSize:    s.Network.ChunkSize,
		RateWindow:   s.Network.RateWindow,
		SpeedLimit:   s.Network.SpeedLimit,
		ProbeTimeout: s.Network.ProbeTimeout,
	}
}
