// Package conf handles the application settings: config file discovery,
// defaults, environment overrides and validation.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"github.com/pqtoolkit/pqtoolkit-go/internal/errors"
)

// SQLiteSettings holds SQLite database settings.
type SQLiteSettings struct {
	Enabled bool   // true to enable sqlite database
	Path    string // path to sqlite database file
}

// MySQLSettings holds MySQL database settings.
type MySQLSettings struct {
	Enabled  bool   // true to enable mysql database
	Username string // username for mysql database
	Password string // password for mysql database
	Database string // database name for mysql database
	Host     string // host for mysql database
	Port     string // port for mysql database
}

// OutputSettings selects and configures the persistence backend.
type OutputSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// WebServerSettings holds the HTTP listener settings.
type WebServerSettings struct {
	Debug bool   // true to enable debug logging of API requests
	Host  string // listen address
	Port  string // listen port
}

// Settings is the root configuration structure.
type Settings struct {
	Debug bool // true to enable debug output

	// AssetRoot is the directory holding the global sample pool and the
	// per-experiment pool subdirectories.
	AssetRoot string

	WebServer WebServerSettings
	Output    OutputSettings
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// Setting returns the current settings instance, or nil before Load.
func Setting() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("PQTOOLKIT")
	viper.AutomaticEnv()

	// Set default values for each configuration parameter
	// function defined in defaults.go
	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// No config file is fine, defaults plus env cover everything
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPaths returns the config file search paths: the working
// directory first, then the user's config directory.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}

	userConfig, err := os.UserConfigDir()
	if err == nil {
		paths = append(paths, filepath.Join(userConfig, "pqtoolkit"))
	}

	return paths, nil
}

// ValidateSettings checks that the loaded settings are usable.
func ValidateSettings(settings *Settings) error {
	if settings.AssetRoot == "" {
		return errors.Newf("assetroot must not be empty").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if !settings.Output.SQLite.Enabled && !settings.Output.MySQL.Enabled {
		return errors.Newf("no database backend enabled, enable output.sqlite or output.mysql").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if settings.Output.SQLite.Enabled && settings.Output.SQLite.Path == "" {
		return errors.Newf("output.sqlite.path must not be empty").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	return nil
}
