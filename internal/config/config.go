// Package config provides unified configuration loading for cosim.
// It supports loading from YAML files and environment variables.
//
// These are operator settings (how to launch simulators, how long to wait);
// scientific parameters live in the per-run parameter file handled by
// package params.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CosimConfig contains all cosim settings.
type CosimConfig struct {
	// Handshake controls endpoint rendezvous between processes.
	Handshake HandshakeConfig `json:"handshake" yaml:"handshake"`

	// Run controls supervision of one run and of explorations.
	Run RunConfig `json:"run" yaml:"run"`

	// Simulators holds the launch commands of both simulators.
	Simulators SimulatorsConfig `json:"simulators" yaml:"simulators"`

	// Translator configures the translation worker processes.
	Translator TranslatorConfig `json:"translator" yaml:"translator"`

	// Logging contains settings for operational logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Store configures the run ledger.
	Store StoreConfig `json:"store" yaml:"store"`
}

// HandshakeConfig configures the file rendezvous.
type HandshakeConfig struct {
	// Timeout bounds every Connect call.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// PollInterval is the fallback polling period when file events are missed.
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`
}

// RunConfig configures process supervision.
type RunConfig struct {
	// Timeout bounds a whole run. Zero disables the limit.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Parallelism is the number of variants run at once during an exploration.
	Parallelism int `json:"parallelism" yaml:"parallelism"`

	// KeepScratch leaves the handshake scratch directory in place after a run.
	KeepScratch bool `json:"keep_scratch" yaml:"keep_scratch"`

	// KillGrace is how long a process gets between interrupt and kill.
	KillGrace time.Duration `json:"kill_grace" yaml:"kill_grace"`
}

// CommandConfig describes how to launch one simulator.
// Args and Env values may contain {result_path}, {parameter_file},
// {scratch_dir}, {regions} and {nb_mpi} placeholders.
type CommandConfig struct {
	Command string            `json:"command" yaml:"command"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// MPI prefixes the command with the MPI launcher.
	MPI bool `json:"mpi" yaml:"mpi"`
}

// SimulatorsConfig holds the simulator launch commands.
type SimulatorsConfig struct {
	Nest CommandConfig `json:"nest" yaml:"nest"`
	TVB  CommandConfig `json:"tvb" yaml:"tvb"`

	// MPIRunner launches MPI jobs on a workstation.
	MPIRunner string `json:"mpi_runner" yaml:"mpi_runner"`

	// ClusterRunner replaces MPIRunner when param_co_simulation.cluster is true.
	ClusterRunner string `json:"cluster_runner" yaml:"cluster_runner"`
}

// TranslatorConfig configures translation workers.
type TranslatorConfig struct {
	// Executable runs `translate`. Empty means the current executable.
	Executable string `json:"executable,omitempty" yaml:"executable,omitempty"`
}

// LoggingConfig configures cosim's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "debug", "info" (default), "warn", "error" or "critical".
	Level string `json:"level" yaml:"level"`
}

// StoreConfig configures the SQLite run ledger.
type StoreConfig struct {
	// Path is the database file. Empty disables the ledger.
	Path string `json:"path" yaml:"path"`
}

// Default returns a CosimConfig with sensible defaults.
func Default() *CosimConfig {
	storePath := ""
	if homeDir, err := os.UserHomeDir(); err == nil {
		storePath = filepath.Join(homeDir, ".cosim", "runs.db")
	}
	return &CosimConfig{
		Handshake: HandshakeConfig{
			Timeout:      2 * time.Minute,
			PollInterval: 200 * time.Millisecond,
		},
		Run: RunConfig{
			Timeout:     0,
			Parallelism: 1,
			KillGrace:   5 * time.Second,
		},
		Simulators: SimulatorsConfig{
			Nest: CommandConfig{
				Command: "run_mpi_nest.sh",
				Args:    []string{"{result_path}"},
				MPI:     true,
			},
			TVB: CommandConfig{
				Command: "run_mpi_tvb.sh",
				Args:    []string{"{result_path}"},
			},
			MPIRunner:     "mpirun",
			ClusterRunner: "srun",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Store: StoreConfig{
			Path: storePath,
		},
	}
}

// DefaultPath returns ~/.cosim/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".cosim", "config.yaml"), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.cosim/config.yaml -> environment variables
func Load() (*CosimConfig, error) {
	config := Default()

	if configPath, err := DefaultPath(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*CosimConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Store.Path = expandEnvVars(config.Store.Path)
	config.Simulators.Nest.Command = expandEnvVars(config.Simulators.Nest.Command)
	config.Simulators.TVB.Command = expandEnvVars(config.Simulators.TVB.Command)

	return config, nil
}

// Save writes the configuration to path as YAML, creating the directory.
func Save(c *CosimConfig, path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks that the configuration is valid.
func (c *CosimConfig) Validate() error {
	if c.Handshake.Timeout <= 0 {
		return fmt.Errorf("handshake.timeout must be positive, got %v", c.Handshake.Timeout)
	}
	if c.Handshake.PollInterval <= 0 {
		return fmt.Errorf("handshake.poll_interval must be positive, got %v", c.Handshake.PollInterval)
	}
	if c.Run.Timeout < 0 {
		return fmt.Errorf("run.timeout must be non-negative, got %v", c.Run.Timeout)
	}
	if c.Run.KillGrace < 0 {
		return fmt.Errorf("run.kill_grace must be non-negative, got %v", c.Run.KillGrace)
	}
	if c.Run.Parallelism < 1 {
		return fmt.Errorf("run.parallelism must be at least 1, got %d", c.Run.Parallelism)
	}
	if c.Simulators.Nest.Command == "" {
		return fmt.Errorf("simulators.nest.command is required")
	}
	if c.Simulators.TVB.Command == "" {
		return fmt.Errorf("simulators.tvb.command is required")
	}
	if (c.Simulators.Nest.MPI || c.Simulators.TVB.MPI) && c.Simulators.MPIRunner == "" {
		return fmt.Errorf("simulators.mpi_runner is required when a simulator uses MPI")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "critical": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error, critical, or empty for default)", c.Logging.Level)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *CosimConfig) {
	if v := os.Getenv("COSIM_HANDSHAKE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Handshake.Timeout = d
		}
	}
	if v := os.Getenv("COSIM_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Handshake.PollInterval = d
		}
	}
	if v := os.Getenv("COSIM_RUN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Run.Timeout = d
		}
	}
	if v := os.Getenv("COSIM_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Run.Parallelism = n
		}
	}
	if v := os.Getenv("COSIM_KEEP_SCRATCH"); v != "" {
		config.Run.KeepScratch = v == "true" || v == "1"
	}
	if v := os.Getenv("COSIM_NEST_COMMAND"); v != "" {
		config.Simulators.Nest.Command = v
	}
	if v := os.Getenv("COSIM_TVB_COMMAND"); v != "" {
		config.Simulators.TVB.Command = v
	}
	if v := os.Getenv("COSIM_MPI_RUNNER"); v != "" {
		config.Simulators.MPIRunner = v
	}
	if v := os.Getenv("COSIM_STORE_PATH"); v != "" {
		config.Store.Path = v
	}
	if v := os.Getenv("COSIM_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
