// Package config loads exporter settings from flags, environment variables,
// a .env file and an optional bbs-exporter.yaml.
//
// Precedence, highest first: command-line flags bound with BindPFlag,
// BBS_* environment variables (and the legacy BITBUCKET_SERVER_* names),
// the config file, defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var v *viper.Viper

// ConfigName is the base name of the config file.
const ConfigName = "bbs-exporter"

// EnvPrefix prefixes every environment variable the exporter reads.
const EnvPrefix = "BBS"

// DefaultMaxThreads bounds the worker pool of each export stage.
const DefaultMaxThreads = 20

// OptionalModels are the models exported unless disabled.
var OptionalModels = []string{"pull_requests", "commit_comments", "teams"}

// legacyEnv maps keys to the variable names the exporter has always
// accepted.
var legacyEnv = map[string]string{
	"server-url": "BITBUCKET_SERVER_URL",
	"username":   "BITBUCKET_SERVER_API_USERNAME",
	"password":   "BITBUCKET_SERVER_API_PASSWORD",
	"token":      "BITBUCKET_SERVER_API_TOKEN",
	"ssl-verify": "SSL_VERIFY",
}

// Initialize sets up the viper configuration singleton.
// Should be called once at application startup.
func Initialize() error {
	v = viper.New()

	// A .env in the working directory fills in variables that are not
	// already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	v.SetConfigName(ConfigName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		v.AddConfigPath(filepath.Join(xdg, ConfigName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", ConfigName))
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		envName := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
		if err := v.BindEnv(key, envName, legacy); err != nil {
			return fmt.Errorf("failed to bind %s: %w", legacy, err)
		}
	}

	// Connection
	v.SetDefault("server-url", "")
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("token", "")
	v.SetDefault("ssl-verify", true)
	v.SetDefault("retries", 5)
	v.SetDefault("read-timeout", 5*time.Minute)
	v.SetDefault("open-timeout", 30*time.Second)
	v.SetDefault("pagination-limit", 250)
	v.SetDefault("git-pagination-limit", 5000)

	// Export
	v.SetDefault("max-threads", DefaultMaxThreads)
	v.SetDefault("models", OptionalModels)
	v.SetDefault("output", "")
	v.SetDefault("staging-dir", "")
	v.SetDefault("ignore-version-check", false)
	v.SetDefault("since", "")

	// Output
	v.SetDefault("verbose", false)
	v.SetDefault("quiet", false)
	v.SetDefault("no-color", false)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// ResetForTesting clears the singleton so the next Initialize starts from
// scratch.
func ResetForTesting() {
	v = nil
}

// ConfigFileUsed returns the path of the loaded config file, or "".
func ConfigFileUsed() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// BindFlag makes a command-line flag override key.
func BindFlag(key string, flag *pflag.Flag) error {
	if v == nil || flag == nil {
		return nil
	}
	return v.BindPFlag(key, flag)
}

// Set overrides a value for the rest of the process.
func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}

// GetString retrieves a string configuration value
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration retrieves a duration configuration value
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// GetStringSlice retrieves a list value. A comma-separated string, as
// environment variables provide, is split.
func GetStringSlice(key string) []string {
	if v == nil {
		return nil
	}
	var out []string
	for _, s := range v.GetStringSlice(key) {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
