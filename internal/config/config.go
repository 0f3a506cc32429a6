package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"canvas-bulkflow/internal/models"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

// EnvFileName is the optional key=value file read from the working directory
// to seed environment defaults (CANVAS_API_TOKEN, CANVAS_BASE_URL).
const EnvFileName = "canvas-bulkflow.env"

// LoadConfig reads the configuration from the specified path (defaulting to
// "config.toml") and fills unset fields with deployment defaults. A missing
// file is not an error: every command can run from flags and environment
// alone.
func LoadConfig(configFilePath string) (models.Config, error) {
	if configFilePath == "" {
		configFilePath = "config.toml"
	}
	var cfg models.Config
	if _, err := os.Stat(configFilePath); err == nil {
		if _, err := toml.DecodeFile(configFilePath, &cfg); err != nil {
			return models.Config{}, fmt.Errorf("error loading config file %s: %w", configFilePath, err)
		}
		log.Infof("Configuration loaded from %s", configFilePath)
	} else {
		log.Debugf("Config file %s not found, using defaults", configFilePath)
	}

	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *models.Config) {
	if cfg.BaseUrl == "" {
		cfg.BaseUrl = os.Getenv("CANVAS_BASE_URL")
	}
	if cfg.BaseUrl == "" {
		cfg.BaseUrl = models.DefaultBaseUrl
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv("CANVAS_API_TOKEN")
	}
	if cfg.OutputFolder == "" {
		cfg.OutputFolder = "Downloads"
	}
	if cfg.OcrFolder == "" {
		cfg.OcrFolder = "Downloads/OCRed"
	}
	if cfg.FileIdColumn == "" {
		cfg.FileIdColumn = models.DefaultFileIdColumn
	}
	if cfg.FilenameColumn == "" {
		cfg.FilenameColumn = models.DefaultFilenameColumn
	}
	if cfg.OcrFileIdColumn == "" {
		cfg.OcrFileIdColumn = models.DefaultOcrFileIdColumn
	}
	if cfg.OcrFilePathColumn == "" {
		cfg.OcrFilePathColumn = models.DefaultOcrFilePathColumn
	}
	if cfg.RowDelayMs <= 0 {
		cfg.RowDelayMs = models.DefaultRowDelayMs
	}
	if cfg.ApiClientTimeoutSec <= 0 {
		cfg.ApiClientTimeoutSec = 60
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = models.DefaultListenAddr
	}
	if cfg.JobRetentionMins <= 0 {
		cfg.JobRetentionMins = 60
	}
}

// LoadEnvFile loads key=value pairs from the given file into the process
// environment. Values already present in the environment win. Lines starting
// with # and lines without '=' are ignored. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = EnvFileName
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("error opening env file %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || !strings.Contains(line, "=") {
			continue
		}
		key, value, _ := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if key == "" {
			continue
		}
		if _, present := os.LookupEnv(key); present {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			log.WithError(err).Warnf("Failed to set %s from env file", key)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading env file %s: %w", path, err)
	}
	return nil
}
