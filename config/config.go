// Package config resolves process configuration once at startup: the
// environment (optionally seeded from a .env file) and the experiment file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables read by Load.
const (
	EnvDataPath       = "DATAPATH"
	EnvResultsDir     = "STFLOW_RESULTS_DIR"
	EnvModelsDir      = "STFLOW_MODELS_DIR"
	EnvExperiment     = "STFLOW_EXPERIMENT"
	EnvRecorderDriver = "STFLOW_RECORDER_DRIVER"
	EnvRecorderDSN    = "STFLOW_RECORDER_DSN"
)

// Config is built once at process entry and passed down explicitly.
type Config struct {
	DataPath       string
	ResultsDir     string
	ModelsDir      string
	ExperimentFile string
	RecorderDriver string
	RecorderDSN    string

	Experiment Experiment
}

// Load reads .env (if present), the environment and the experiment file
// named by STFLOW_EXPERIMENT. A missing .env is not an error.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read env file: %w", err)
		}
		log.Println("No .env file found, using system environment")
	}

	cfg := &Config{
		DataPath:       getEnv(EnvDataPath, "./data"),
		ResultsDir:     getEnv(EnvResultsDir, "RET"),
		ModelsDir:      getEnv(EnvModelsDir, "MODEL"),
		ExperimentFile: getEnv(EnvExperiment, ""),
		RecorderDriver: getEnv(EnvRecorderDriver, ""),
		RecorderDSN:    getEnv(EnvRecorderDSN, ""),
		Experiment:     DefaultExperiment(),
	}

	if cfg.ExperimentFile != "" {
		exp, err := LoadExperiment(cfg.ExperimentFile, cfg.Experiment)
		if err != nil {
			return nil, err
		}
		cfg.Experiment = exp
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	if c.ResultsDir == "" || c.ModelsDir == "" {
		return fmt.Errorf("results and models directories must be set")
	}
	switch c.RecorderDriver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported recorder driver %q", c.RecorderDriver)
	}
	if c.RecorderDriver != "" && c.RecorderDSN == "" {
		return fmt.Errorf("%s requires %s", EnvRecorderDriver, EnvRecorderDSN)
	}
	return c.Experiment.Validate()
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}
