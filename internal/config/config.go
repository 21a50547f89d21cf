// Package config loads the command line configuration from an optional .env
// file and from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Prefix is the prefix of the environment variables read by [Load].
const Prefix = "SHELFDB_"

var validate = validator.New()

// Config holds the command line settings.
type Config struct {
	Data       Data `mapstructure:"data"`
	Log        Log  `mapstructure:"log"`
	Timestamps bool `mapstructure:"timestamps"`
}

// Data describes the data file.
type Data struct {
	// File is the data file path. Empty keeps the database in memory.
	File string `mapstructure:"file"`
	// Threshold is the share of corrupt lines tolerated when loading.
	Threshold float64 `mapstructure:"threshold" validate:"gte=0,lte=1"`
}

// Log describes the logger.
type Log struct {
	Level  string `mapstructure:"level" validate:"oneof=DEBUG INFO WARN ERROR"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// Load reads envFile (if it exists) and then environ, which has the format of
// [os.Environ]. Variables starting with [Prefix] are mapped to dotted keys, so
// SHELFDB_DATA_FILE sets data.file. Environment variables win over the file.
func Load(envFile string, environ []string) (Config, error) {
	v := viper.New()
	v.SetDefault("data.file", "data/books.db")
	v.SetDefault("data.threshold", 0.1)
	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.format", "text")
	v.SetDefault("timestamps", true)

	if envFile != "" {
		f := viper.New()
		f.SetConfigFile(envFile)
		f.SetConfigType("env")
		err := f.ReadInConfig()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("reading %s: %w", envFile, err)
		}
		for _, key := range f.AllKeys() {
			if k, ok := propKey(key); ok {
				v.Set(k, f.Get(key))
			}
		}
	}

	for _, env := range environ {
		key, value, found := strings.Cut(env, "=")
		if !found {
			continue
		}
		if k, ok := propKey(key); ok {
			v.Set(k, value)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Log.Level = strings.ToUpper(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the log settings and the corruption threshold.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// propKey maps a prefixed variable such as SHELFDB_LOG_LEVEL to its config
// key, log.level. It reports false for variables without the prefix.
func propKey(key string) (string, bool) {
	upper := strings.ToUpper(key)
	if !strings.HasPrefix(upper, Prefix) {
		return "", false
	}
	k := strings.TrimPrefix(upper, Prefix)
	k = strings.ToLower(strings.ReplaceAll(k, "_", "."))
	k = strings.Trim(k, ".")
	return k, k != ""
}
