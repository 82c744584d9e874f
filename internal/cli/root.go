// Package cli provides the command-line interface for rshop.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/retro/rshop/internal/config"
	"github.com/retro/rshop/internal/logging"
	"github.com/retro/rshop/internal/metrics"
	"github.com/retro/rshop/internal/remote"
	"github.com/retro/rshop/internal/services"
	"github.com/retro/rshop/internal/version"
)

var (
	// Global flags
	cfgFile string
	logFile string
	verbose bool

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rshop",
		Short: "Browse, download and unpack game archives from SMB shares",
		Long: `rshop ` + version.Version + ` - Built: ` + version.BuildTime + `
Lists and downloads files from SMB2/3 shares and extracts zip and tar
archives with path and size guards.

Commands that talk to a share take --host and --share plus optional
credentials. Without --user the guest account is used.

serve exposes the same operations as newline-delimited JSON on stdio or a
unix socket, with download and extract progress pushed as events.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			mode := "cli"
			if cmd.Name() == "serve" {
				mode = "serve"
			}
			file := logFile
			if file == "" {
				file, err = configuredLogFile(cfg.Log.File)
				if err != nil {
					return err
				}
			}
			logger = logging.NewLogger(logging.Options{Mode: mode, File: file})
			if verbose {
				logging.SetGlobalLevel(logging.ParseLevel("debug"))
			} else {
				logging.SetGlobalLevel(logging.ParseLevel(cfg.Log.Level))
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path (default ~/.config/rshop/rshop.conf)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write logs to this file (rotated)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	completionCmd := &cobra.Command{
		Use:       "completion [bash|zsh|fish|powershell]",
		Short:     "Generate a shell completion script",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		Long: `Generate a shell completion script for rshop.

QUICK TEST (current session only):
  source <(rshop completion bash)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return rootCmd.GenBashCompletion(out)
			case "zsh":
				return rootCmd.GenZshCompletion(out)
			case "fish":
				return rootCmd.GenFishCompletion(out, true)
			default:
				return rootCmd.GenPowerShellCompletion(out)
			}
		},
	}
	rootCmd.AddCommand(completionCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	rootContext, cancelFunc = context.WithCancel(context.Background())
	defer cancelFunc()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\nReceived signal %v, cancelling operations...\n", sig)
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.Execute()

	signal.Stop(sigChan)
	close(sigChan)
	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newTestCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newExtractCmd())
	rootCmd.AddCommand(newFreeSpaceCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newConfigCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// GetContext returns the global CLI context with signal handling.
// This context will be cancelled when the user presses Ctrl+C.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}

// configPath resolves --config or the default location.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultConfigPath()
}

// loadConfig reads and validates the settings file. A missing file yields
// the defaults.
func loadConfig() (*config.Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// configuredLogFile places a bare [log] file name in the log directory.
func configuredLogFile(name string) (string, error) {
	if name == "" || filepath.Base(name) != name {
		return name, nil
	}
	if err := config.EnsureLogDirectory(); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}
	return filepath.Join(config.LogDirectory(), name), nil
}

// newService builds the service for one command invocation. A non-empty
// localRoot serves shares from subdirectories of that local directory
// instead of connecting over SMB.
func newService(cfg *config.Config, localRoot string, m *metrics.Metrics) *services.SMBService {
	opts := services.Options{Config: cfg, Metrics: m, Logger: GetLogger()}
	if localRoot != "" {
		opts.Connector = remote.NewLocalConnector(localRoot)
	}
	return services.NewSMBService(opts)
}
