package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/retro/rshop/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage rshop configuration",
		Long: `Configuration management commands for rshop.

Commands:
  init  - Interactive configuration setup
  show  - Display the effective configuration
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigPathCmd())
	return configCmd
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool
	var defaults bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for rshop.

Passwords are never stored. Use --defaults to write the built-in defaults
without prompting, and --force to overwrite an existing file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(out, "Configuration already exists at: %s\n", path)
					fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			cfg := config.New()
			if !defaults {
				if err := promptConfig(bufio.NewReader(cmd.InOrStdin()), out, cfg); err != nil {
					return err
				}
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(cfg, path); err != nil {
				return err
			}
			GetLogger().Info().Str("path", path).Msg("Configuration saved")
			fmt.Fprintf(out, "Configuration saved to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&defaults, "defaults", false, "Write defaults without prompting")
	return cmd
}

func promptConfig(r *bufio.Reader, out io.Writer, cfg *config.Config) error {
	fmt.Fprintln(out, "rshop Configuration Setup")
	fmt.Fprintln(out, "=========================")
	fmt.Fprintln(out, "Press Enter to keep the value in brackets.")
	fmt.Fprintln(out)

	port, err := strconv.Atoi(promptString(r, out, "Default port", strconv.Itoa(cfg.Remote.Port)))
	if err != nil {
		return fmt.Errorf("port: %w", err)
	}
	cfg.Remote.Port = port
	cfg.Remote.User = promptString(r, out, "Default user", cfg.Remote.User)
	cfg.Remote.Domain = promptString(r, out, "Default domain", cfg.Remote.Domain)

	maxBytes, err := humanize.ParseBytes(promptString(r, out, "Extraction limit", humanize.IBytes(uint64(cfg.Extract.MaxBytes))))
	if err != nil {
		return fmt.Errorf("extraction limit: %w", err)
	}
	cfg.Extract.MaxBytes = int64(maxBytes)

	workers, err := strconv.Atoi(promptString(r, out, "Background workers", strconv.Itoa(cfg.Pool.Workers)))
	if err != nil {
		return fmt.Errorf("workers: %w", err)
	}
	cfg.Pool.Workers = workers
	cfg.Log.Level = promptString(r, out, "Log level", cfg.Log.Level)
	return nil
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "[remote]")
			fmt.Fprintf(out, "  port:               %d\n", cfg.Remote.Port)
			fmt.Fprintf(out, "  user:               %s\n", cfg.Remote.User)
			fmt.Fprintf(out, "  domain:             %s\n", cfg.Remote.Domain)
			fmt.Fprintf(out, "  connect timeout:    %s\n", cfg.ConnectTimeout())
			fmt.Fprintf(out, "  read timeout:       %s\n", cfg.ReadTimeout())
			fmt.Fprintln(out, "[download]")
			fmt.Fprintf(out, "  inactivity timeout: %s\n", cfg.InactivityTimeout())
			fmt.Fprintf(out, "  progress interval:  %s\n", cfg.ProgressInterval())
			fmt.Fprintf(out, "  buffer size:        %s\n", humanize.IBytes(uint64(cfg.Download.BufferSize)))
			fmt.Fprintln(out, "[extract]")
			fmt.Fprintf(out, "  max bytes:          %s\n", humanize.IBytes(uint64(cfg.Extract.MaxBytes)))
			fmt.Fprintln(out, "[pool]")
			fmt.Fprintf(out, "  workers:            %d\n", cfg.Pool.Workers)
			fmt.Fprintf(out, "  shutdown grace:     %s\n", cfg.ShutdownGrace())
			fmt.Fprintln(out, "[log]")
			fmt.Fprintf(out, "  level:              %s\n", cfg.Log.Level)
			fmt.Fprintf(out, "  file:               %s\n", cfg.Log.File)
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
