package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "civicreport.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/civicreport"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
)

// Environment variables applied after the config files.
const (
	EnvGeminiAPIKey = "GEMINI_API_KEY"
	EnvNATSURL      = "CIVIC_NATS_URL"
	EnvTokenSecret  = "CIVIC_TOKEN_SECRET"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger    *slog.Logger
	homeDir   func() (string, error)
	workDir   func() (string, error)
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		logger:    logger,
		homeDir:   os.UserHomeDir,
		workDir:   os.Getwd,
		lookupEnv: os.LookupEnv,
	}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/civicreport/config.yaml)
// 3. Project config (civicreport.yaml in current or parent directories)
// 4. Environment variables
func (l *Loader) Load() (*Config, error) {
	config := DefaultConfig()

	userConfigPath := l.userConfigPath()
	if userConfigPath != "" {
		if err := applyFile(userConfigPath, config); err == nil {
			l.logger.Debug("Loaded user config", slog.String("path", userConfigPath))
		} else if !os.IsNotExist(err) {
			l.logger.Warn("Failed to load user config", slog.String("path", userConfigPath), slog.String("error", err.Error()))
		}
	}

	projectConfigPath := l.findProjectConfig()
	if projectConfigPath != "" {
		if err := applyFile(projectConfigPath, config); err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded project config", slog.String("path", projectConfigPath))
	} else {
		l.logger.Debug("No project config found")
	}

	l.applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadFile loads defaults, then path, then environment variables.
func (l *Loader) LoadFile(path string) (*Config, error) {
	config := DefaultConfig()

	if err := applyFile(path, config); err != nil {
		return nil, err
	}
	l.applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// EnsureUserConfig creates the user config file with defaults if it doesn't exist
func (l *Loader) EnsureUserConfig() (string, error) {
	userConfigPath := l.userConfigPath()
	if userConfigPath == "" {
		return "", fmt.Errorf("cannot determine home directory")
	}

	if _, err := os.Stat(userConfigPath); err == nil {
		return userConfigPath, nil
	}

	if err := DefaultConfig().SaveToFile(userConfigPath); err != nil {
		return "", err
	}

	l.logger.Info("Created default user config", slog.String("path", userConfigPath))
	return userConfigPath, nil
}

func (l *Loader) applyEnv(config *Config) {
	if v, ok := l.lookupEnv(EnvGeminiAPIKey); ok && v != "" {
		config.Gemini.APIKey = v
	}
	if v, ok := l.lookupEnv(EnvNATSURL); ok && v != "" {
		config.NATS.URL = v
	}
	if v, ok := l.lookupEnv(EnvTokenSecret); ok && v != "" {
		config.Auth.TokenSecret = v
	}
}

// userConfigPath returns the path to the user config file
func (l *Loader) userConfigPath() string {
	home, err := l.homeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for civicreport.yaml in current and parent directories
func (l *Loader) findProjectConfig() string {
	cwd, err := l.workDir()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// applyFile decodes path on top of config. Keys present in the file win,
// including explicit zero values; absent keys keep the earlier layers.
// config is left untouched when the file cannot be read or parsed.
func applyFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	next := *config
	if err := yaml.Unmarshal(data, &next); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	*config = next
	return nil
}
