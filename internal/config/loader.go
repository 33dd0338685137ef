package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix            = "CHATCLIENT"
	envConfigDefaultPath = "CHATCLIENT_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "chatclient.yaml"
	dotEnvFile           = ".env"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
// A .env file in the working directory is loaded into the environment first;
// variables already set are not replaced.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	loadDotEnv(logger)

	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("server_url", cfg.ServerURL)
	v.SetDefault("user_name", cfg.UserName)
	v.SetDefault("channel", cfg.Channel)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("dial_timeout", cfg.DialTimeout)
	v.SetDefault("write_timeout", cfg.WriteTimeout)
	v.SetDefault("shutdown_timeout", cfg.ShutdownTimeout)
	v.SetDefault("heartbeat_delay", cfg.HeartbeatDelay)
	v.SetDefault("heartbeat_period", cfg.HeartbeatPeriod)
	v.SetDefault("metrics_addr", cfg.MetricsAddr)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, configPath, nil
}

func loadDotEnv(logger *zerolog.Logger) {
	err := godotenv.Load(dotEnvFile)
	switch {
	case err == nil:
		if logger != nil {
			logger.Debug().Str("path", dotEnvFile).Msg("loaded environment file")
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		if logger != nil {
			logger.Warn().Err(err).Str("path", dotEnvFile).Msg("failed to load environment file")
		}
	}
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
