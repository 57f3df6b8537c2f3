package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hbomb79/Tube/internal/api"
	"github.com/hbomb79/Tube/internal/download"
	"github.com/hbomb79/Tube/internal/ffmpeg"
	"github.com/hbomb79/Tube/internal/progress"
	"github.com/hbomb79/Tube/internal/provider"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
)

const TUBE_TEMP_DIR_SUFFIX = "tube"

// TubeConfig is the struct used to contain the
// various user config supplied by file, environment
// or manually inside the code.
type TubeConfig struct {
	RestConfig api.RestConfig  `yaml:"http"`
	Download   download.Config `yaml:"download"`
	Format     ffmpeg.Config   `yaml:"ffmpeg"`
	Progress   progress.Config `yaml:"progress"`
	Provider   provider.Config `yaml:"provider"`
	LogLevel   string          `yaml:"log_level" env:"LOG_LEVEL" env-default:"INFO"`
}

// Load populates the config from the optional .env file in the working
// directory, the optional YAML file at configPath, and finally the process
// environment. Directory paths beginning with '~' are expanded.
func (config *TubeConfig) Load(configPath string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env file: %w", err)
	}

	if configPath != "" {
		if err := cleanenv.ReadConfig(configPath, config); err != nil {
			return fmt.Errorf("failed to load configuration from %s - %v", configPath, err.Error())
		}
	} else if err := cleanenv.ReadEnv(config); err != nil {
		return fmt.Errorf("failed to load configuration from environment - %v", err.Error())
	}

	return config.expandPaths()
}

func (config *TubeConfig) expandPaths() error {
	for _, path := range []*string{&config.RestConfig.PublicDir, &config.Download.TempDir} {
		expanded, err := homedir.Expand(*path)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *path, err)
		}
		*path = expanded
	}

	if config.Download.TempDir == "" {
		config.Download.TempDir = filepath.Join(os.TempDir(), TUBE_TEMP_DIR_SUFFIX)
	}

	return nil
}
