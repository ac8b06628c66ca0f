package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	config := Default()

	if config.Handshake.Timeout != 2*time.Minute {
		t.Errorf("expected Handshake.Timeout 2m, got %v", config.Handshake.Timeout)
	}
	if config.Handshake.PollInterval != 200*time.Millisecond {
		t.Errorf("expected PollInterval 200ms, got %v", config.Handshake.PollInterval)
	}
	if config.Run.Parallelism != 1 {
		t.Errorf("expected Parallelism 1, got %d", config.Run.Parallelism)
	}
	if config.Run.Timeout != 0 {
		t.Errorf("expected no run timeout by default, got %v", config.Run.Timeout)
	}
	if !config.Simulators.Nest.MPI {
		t.Error("expected nest to launch through MPI by default")
	}
	if config.Simulators.MPIRunner != "mpirun" || config.Simulators.ClusterRunner != "srun" {
		t.Errorf("unexpected runners: %s / %s", config.Simulators.MPIRunner, config.Simulators.ClusterRunner)
	}
	if config.Translator.Executable != "" {
		t.Errorf("expected translator to default to the current executable, got %s", config.Translator.Executable)
	}
	if config.Logging.Level != "info" {
		t.Errorf("expected Logging.Level 'info', got '%s'", config.Logging.Level)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
handshake:
  timeout: 30s
  poll_interval: 50ms
run:
  timeout: 2h
  parallelism: 4
  keep_scratch: true
simulators:
  nest:
    command: /opt/nest/run.sh
    args: ["{parameter_file}", "{regions}"]
    mpi: true
  tvb:
    command: /opt/tvb/run.sh
    env:
      TVB_THREADS: "2"
store:
  path: /var/lib/cosim/runs.db
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Handshake.Timeout != 30*time.Second {
		t.Errorf("expected Timeout 30s, got %v", config.Handshake.Timeout)
	}
	if config.Handshake.PollInterval != 50*time.Millisecond {
		t.Errorf("expected PollInterval 50ms, got %v", config.Handshake.PollInterval)
	}
	if config.Run.Timeout != 2*time.Hour {
		t.Errorf("expected run timeout 2h, got %v", config.Run.Timeout)
	}
	if config.Run.Parallelism != 4 {
		t.Errorf("expected Parallelism 4, got %d", config.Run.Parallelism)
	}
	if !config.Run.KeepScratch {
		t.Error("expected KeepScratch to be true")
	}
	if config.Simulators.Nest.Command != "/opt/nest/run.sh" {
		t.Errorf("expected nest command, got '%s'", config.Simulators.Nest.Command)
	}
	if len(config.Simulators.Nest.Args) != 2 || config.Simulators.Nest.Args[1] != "{regions}" {
		t.Errorf("unexpected nest args: %v", config.Simulators.Nest.Args)
	}
	if config.Simulators.TVB.Env["TVB_THREADS"] != "2" {
		t.Errorf("expected TVB env, got %v", config.Simulators.TVB.Env)
	}
	// Unset keys keep their defaults
	if config.Simulators.MPIRunner != "mpirun" {
		t.Errorf("expected default MPIRunner, got '%s'", config.Simulators.MPIRunner)
	}
	if config.Store.Path != "/var/lib/cosim/runs.db" {
		t.Errorf("expected store path, got '%s'", config.Store.Path)
	}
}

func TestLoadFromFile_EnvExpansion(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
simulators:
  nest:
    command: ${TEST_NEST_HOME}/run.sh
store:
  path: ${TEST_NEST_HOME}/runs.db
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	t.Setenv("TEST_NEST_HOME", "/opt/nest")

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Simulators.Nest.Command != "/opt/nest/run.sh" {
		t.Errorf("expected expanded command, got '%s'", config.Simulators.Nest.Command)
	}
	if config.Store.Path != "/opt/nest/runs.db" {
		t.Errorf("expected expanded store path, got '%s'", config.Store.Path)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("COSIM_HANDSHAKE_TIMEOUT", "5s")
	t.Setenv("COSIM_RUN_TIMEOUT", "10m")
	t.Setenv("COSIM_PARALLELISM", "3")
	t.Setenv("COSIM_KEEP_SCRATCH", "1")
	t.Setenv("COSIM_NEST_COMMAND", "nest-sim")
	t.Setenv("COSIM_TVB_COMMAND", "tvb-sim")
	t.Setenv("COSIM_STORE_PATH", "/tmp/ledger.db")

	config := Default()
	applyEnvOverrides(config)

	if config.Handshake.Timeout != 5*time.Second {
		t.Errorf("expected Timeout 5s, got %v", config.Handshake.Timeout)
	}
	if config.Run.Timeout != 10*time.Minute {
		t.Errorf("expected run timeout 10m, got %v", config.Run.Timeout)
	}
	if config.Run.Parallelism != 3 {
		t.Errorf("expected Parallelism 3, got %d", config.Run.Parallelism)
	}
	if !config.Run.KeepScratch {
		t.Error("expected KeepScratch to be true")
	}
	if config.Simulators.Nest.Command != "nest-sim" || config.Simulators.TVB.Command != "tvb-sim" {
		t.Errorf("unexpected commands: %s / %s", config.Simulators.Nest.Command, config.Simulators.TVB.Command)
	}
	if config.Store.Path != "/tmp/ledger.db" {
		t.Errorf("expected store path override, got %s", config.Store.Path)
	}
}

func TestEnvOverrides_IgnoresMalformed(t *testing.T) {
	t.Setenv("COSIM_HANDSHAKE_TIMEOUT", "soon")
	t.Setenv("COSIM_PARALLELISM", "many")

	config := Default()
	applyEnvOverrides(config)

	if config.Handshake.Timeout != 2*time.Minute {
		t.Errorf("expected default timeout kept, got %v", config.Handshake.Timeout)
	}
	if config.Run.Parallelism != 1 {
		t.Errorf("expected default parallelism kept, got %d", config.Run.Parallelism)
	}
}

func TestEnvOverrides_LogLevel(t *testing.T) {
	t.Setenv("COSIM_LOG_LEVEL", "debug")

	config := Default()
	applyEnvOverrides(config)

	if config.Logging.Level != "debug" {
		t.Errorf("expected Logging.Level 'debug', got '%s'", config.Logging.Level)
	}
}

func TestValidate_Valid(t *testing.T) {
	config := Default()
	if err := config.Validate(); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *CosimConfig)
	}{
		{"zero handshake timeout", func(c *CosimConfig) { c.Handshake.Timeout = 0 }},
		{"zero poll interval", func(c *CosimConfig) { c.Handshake.PollInterval = 0 }},
		{"negative run timeout", func(c *CosimConfig) { c.Run.Timeout = -time.Second }},
		{"negative kill grace", func(c *CosimConfig) { c.Run.KillGrace = -time.Second }},
		{"zero parallelism", func(c *CosimConfig) { c.Run.Parallelism = 0 }},
		{"missing nest command", func(c *CosimConfig) { c.Simulators.Nest.Command = "" }},
		{"missing tvb command", func(c *CosimConfig) { c.Simulators.TVB.Command = "" }},
		{"mpi without runner", func(c *CosimConfig) { c.Simulators.MPIRunner = "" }},
		{"bad log level", func(c *CosimConfig) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(config)
			if err := config.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidate_ValidLogLevels(t *testing.T) {
	for _, level := range []string{"", "debug", "info", "warn", "error", "critical"} {
		t.Run(level, func(t *testing.T) {
			config := Default()
			config.Logging.Level = level
			if err := config.Validate(); err != nil {
				t.Errorf("expected level '%s' to be valid, got error: %v", level, err)
			}
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	config := Default()
	config.Run.Parallelism = 6
	config.Simulators.TVB.Args = []string{"{parameter_file}"}

	if err := Save(config, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Run.Parallelism != 6 {
		t.Errorf("expected Parallelism 6, got %d", loaded.Run.Parallelism)
	}
	if loaded.Handshake.Timeout != config.Handshake.Timeout {
		t.Errorf("expected timeout %v, got %v", config.Handshake.Timeout, loaded.Handshake.Timeout)
	}
}

func TestLoadFromFile_NotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("handshake: [unclosed"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := LoadFromFile(configPath)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}
