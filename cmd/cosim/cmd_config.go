package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/cosim/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage cosim settings",
		Long: `View and modify cosim settings.

Settings are stored in ~/.cosim/config.yaml and can be overridden with
COSIM_* environment variables.

Examples:
  cosim config list                              # Show all settings
  cosim config get handshake.timeout             # Get a specific setting
  cosim config set simulators.mpi_runner srun    # Set a setting`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal settings: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]

			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			value, found := getConfigValue(cfg, key)
			if !found {
				return fmt.Errorf("unknown configuration key: %s", key)
			}

			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"key":   key,
					"value": value,
				})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, value)
			}
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a setting in ~/.cosim/config.yaml",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key, value := args[0], args[1]

			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				var err error
				if path, err = config.DefaultPath(); err != nil {
					return fmt.Errorf("failed to locate settings file: %w", err)
				}
			}

			// Environment overrides must not leak into the saved file.
			cfg := config.Default()
			if loaded, err := config.LoadFromFile(path); err == nil {
				cfg = loaded
			}

			if err := setConfigValue(cfg, key, value); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid settings: %w", err)
			}
			if err := config.Save(cfg, path); err != nil {
				return fmt.Errorf("failed to save settings: %w", err)
			}

			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"status": "updated",
					"key":    key,
					"value":  value,
				})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
			}
			return nil
		},
	}
}

// getConfigValue retrieves a setting by dot-notation key.
func getConfigValue(cfg *config.CosimConfig, key string) (any, bool) {
	switch key {
	case "handshake.timeout":
		return cfg.Handshake.Timeout.String(), true
	case "handshake.poll_interval":
		return cfg.Handshake.PollInterval.String(), true
	case "run.timeout":
		return cfg.Run.Timeout.String(), true
	case "run.parallelism":
		return cfg.Run.Parallelism, true
	case "run.keep_scratch":
		return cfg.Run.KeepScratch, true
	case "run.kill_grace":
		return cfg.Run.KillGrace.String(), true
	case "simulators.nest.command":
		return cfg.Simulators.Nest.Command, true
	case "simulators.tvb.command":
		return cfg.Simulators.TVB.Command, true
	case "simulators.mpi_runner":
		return cfg.Simulators.MPIRunner, true
	case "simulators.cluster_runner":
		return cfg.Simulators.ClusterRunner, true
	case "translator.executable":
		return cfg.Translator.Executable, true
	case "logging.level":
		return cfg.Logging.Level, true
	case "store.path":
		return cfg.Store.Path, true
	default:
		return nil, false
	}
}

// setConfigValue sets a setting by dot-notation key.
func setConfigValue(cfg *config.CosimConfig, key, value string) error {
	parseDuration := func() (time.Duration, error) {
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %s", key, value)
		}
		return d, nil
	}

	var err error
	switch key {
	case "handshake.timeout":
		cfg.Handshake.Timeout, err = parseDuration()
	case "handshake.poll_interval":
		cfg.Handshake.PollInterval, err = parseDuration()
	case "run.timeout":
		cfg.Run.Timeout, err = parseDuration()
	case "run.kill_grace":
		cfg.Run.KillGrace, err = parseDuration()
	case "run.parallelism":
		n, perr := strconv.Atoi(value)
		if perr != nil {
			return fmt.Errorf("invalid parallelism: %s", value)
		}
		cfg.Run.Parallelism = n
	case "run.keep_scratch":
		cfg.Run.KeepScratch = value == "true" || value == "1"
	case "simulators.nest.command":
		cfg.Simulators.Nest.Command = value
	case "simulators.tvb.command":
		cfg.Simulators.TVB.Command = value
	case "simulators.mpi_runner":
		cfg.Simulators.MPIRunner = value
	case "simulators.cluster_runner":
		cfg.Simulators.ClusterRunner = value
	case "translator.executable":
		cfg.Translator.Executable = value
	case "logging.level":
		cfg.Logging.Level = value
	case "store.path":
		cfg.Store.Path = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return err
}
