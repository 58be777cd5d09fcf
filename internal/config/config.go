// Package config loads the runtime configuration of genesisvault.
//
// Values come from, in order of precedence: GENESISVAULT_* environment
// variables, a .env file, a genesisvault.yaml file, and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvPrefix  = "GENESISVAULT"
	configName = "genesisvault"
)

const (
	KeyDataDir    = "data_dir"
	KeyInMemory   = "in_memory"
	KeySyncWrites = "sync_writes"
)

// Config holds the settings the vault bootstrap needs
type Config struct {
	DataDir    string `mapstructure:"data_dir"`
	InMemory   bool   `mapstructure:"in_memory"`
	SyncWrites bool   `mapstructure:"sync_writes"`

	// Source files actually read, empty when absent
	ConfigFile string `mapstructure:"-"`
	EnvFile    string `mapstructure:"-"`
}

// Options controls where Load looks for files
type Options struct {
	// Directories searched for genesisvault.yaml
	ConfigPaths []string

	// Path of the dotenv file; empty disables it
	EnvFile string
}

// DefaultOptions searches the working directory and $HOME/.config/genesisvault
func DefaultOptions() Options {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", configName))
	}
	return Options{
		ConfigPaths: paths,
		EnvFile:     ".env",
	}
}

// DefaultDataDir returns the directory used when data_dir is not configured
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + configName
	}
	return filepath.Join(home, ".local", "share", configName)
}

// Load resolves the configuration
func Load(opts Options) (Config, error) {
	v := viper.New()

	v.SetDefault(KeyDataDir, DefaultDataDir())
	v.SetDefault(KeyInMemory, false)
	v.SetDefault(KeySyncWrites, true)

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	for _, p := range opts.ConfigPaths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	var cfg Config

	if len(opts.ConfigPaths) > 0 {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("failed to read config file: %w", err)
			}
		} else {
			cfg.ConfigFile = v.ConfigFileUsed()
		}
	}

	if opts.EnvFile != "" {
		loaded, err := mergeEnvFile(v, opts.EnvFile)
		if err != nil {
			return Config{}, err
		}
		if loaded {
			cfg.EnvFile = opts.EnvFile
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// mergeEnvFile layers GENESISVAULT_* entries of a dotenv file above the
// config file. The process environment is left untouched, so real
// environment variables still win through AutomaticEnv.
func mergeEnvFile(v *viper.Viper, path string) (bool, error) {
	entries, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read env file %s: %w", path, err)
	}

	values := make(map[string]interface{})
	for key, value := range entries {
		name, ok := strings.CutPrefix(key, EnvPrefix+"_")
		if !ok {
			continue
		}
		values[strings.ToLower(name)] = value
	}
	if len(values) == 0 {
		return true, nil
	}

	if err := v.MergeConfigMap(values); err != nil {
		return false, fmt.Errorf("failed to merge env file %s: %w", path, err)
	}
	return true, nil
}

// Validate checks that the configuration can open a store
func (c Config) Validate() error {
	if !c.InMemory && strings.TrimSpace(c.DataDir) == "" {
		return errors.New("data_dir must be set unless in_memory is enabled")
	}
	return nil
}
