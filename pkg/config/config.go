package config

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
)

// ConfigFile pairs a .env file with the struct it fills. Config must be a
// pointer to a struct with envconfig tags.
type ConfigFile struct {
	Path   string
	Config interface{}
}

// LoadConfigFiles loads each file into the environment and then processes
// its struct. A missing file is an error.
func LoadConfigFiles(configFiles ...*ConfigFile) error {
	for _, configFile := range configFiles {
		if configFile.Path != "" {
			if err := godotenv.Load(configFile.Path); err != nil {
				return err
			}
		}

		if err := envconfig.Process("", configFile.Config); err != nil {
			return err
		}
	}
	return nil
}

// LoadConfigs fills every struct from the environment alone.
func LoadConfigs(config ...interface{}) error {
	for _, cfg := range config {
		if err := envconfig.Process("", cfg); err != nil {
			return err
		}
	}
	return nil
}

// LoadEnv loads an optional .env file and then fills cfg from the
// environment. Variables already set win over the file.
func LoadEnv(path string, cfg interface{}, logger *zap.Logger) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			logger.Info("no .env file, using the environment only", zap.String("path", path))
		}
	}
	return envconfig.Process("", cfg)
}
