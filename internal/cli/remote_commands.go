package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/retro/rshop/internal/errkind"
	"github.com/retro/rshop/internal/events"
	"github.com/retro/rshop/internal/progress"
	"github.com/retro/rshop/internal/services"
)

// newTestCmd creates the 'test' command.
func newTestCmd() *cobra.Command {
	var conn connFlags
	var dir string

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Test that a share can be mounted and listed",
		Example: `  rshop test --host nas.local --share games
  rshop test --host 10.0.0.5 --share roms --user alice --path /snes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			svc := newService(cfg, conn.localRoot, nil)
			defer svc.Shutdown()

			res, err := svc.TestConnection(GetContext(), conn.args(dir))
			if err != nil {
				return err
			}
			if !res.Success {
				return errors.New(res.Error)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Connection to \\\\%s\\%s OK\n", conn.host, conn.share)
			return nil
		},
	}
	conn.bind(cmd)
	cmd.Flags().StringVar(&dir, "path", "", "Directory inside the share to list")
	return cmd
}

// newListCmd creates the 'ls' command.
func newListCmd() *cobra.Command {
	var conn connFlags
	var depth int
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a directory on a share",
		Long: `List a directory on a share.

--depth N also lists subdirectories up to N levels below the path.
Hidden directories (names starting with '.') are listed but not descended.`,
		Example: `  rshop ls --host nas.local --share games
  rshop ls --host nas.local --share games snes --depth 2 --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			svc := newService(cfg, conn.localRoot, nil)
			defer svc.Shutdown()

			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			entries, err := svc.ListFiles(GetContext(), services.ListArgs{
				ConnectionArgs: conn.args(dir),
				MaxDepth:       &depth,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				data, err := json.MarshalIndent(entries, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			if len(entries) == 0 {
				fmt.Fprintln(out, "No entries found")
				return nil
			}
			fmt.Fprintf(out, "%-10s %12s  %s\n", "TYPE", "SIZE", "PATH")
			for _, e := range entries {
				kind, size := "file", humanize.IBytes(uint64(e.Size))
				if e.IsDirectory {
					kind, size = "dir", "-"
				}
				fmt.Fprintf(out, "%-10s %12s  %s\n", kind, size, e.Path)
			}
			return nil
		},
	}
	conn.bind(cmd)
	cmd.Flags().IntVarP(&depth, "depth", "d", 0, "Levels of subdirectories to descend")
	cmd.Flags().BoolVarP(&outputJSON, "json", "J", false, "Output as JSON")
	return cmd
}

// newGetCmd creates the 'get' command.
func newGetCmd() *cobra.Command {
	var conn connFlags
	var id string
	var force bool

	cmd := &cobra.Command{
		Use:   "get <remote-path> [local-path]",
		Short: "Download one file from a share",
		Long: `Download one file from a share.

The local path defaults to the remote file name in the current directory.
Ctrl+C cancels the transfer and removes the partial file.`,
		Example: `  rshop get --host nas.local --share games snes/zelda.zip
  rshop get --host nas.local --share games snes/zelda.zip ~/roms/zelda.zip`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			remotePath := args[0]
			localPath := path.Base(filepath.ToSlash(remotePath))
			if len(args) == 2 {
				localPath = args[1]
			}
			if !force {
				if _, err := os.Stat(localPath); err == nil {
					ok, err := promptConfirm(cmd.InOrStdin(), cmd.ErrOrStderr(), fmt.Sprintf("%s exists. Overwrite?", localPath))
					if err != nil || !ok {
						return fmt.Errorf("%s exists, use --force to overwrite", localPath)
					}
				}
			}
			if id == "" {
				id = uuid.NewString()
			}

			svc := newService(cfg, conn.localRoot, nil)
			defer svc.Shutdown()

			status, err := runDownload(GetContext(), svc, services.DownloadArgs{
				ConnectionArgs: conn.args(""),
				DownloadID:     id,
				FilePath:       remotePath,
				OutputPath:     localPath,
			}, progress.NewDownloadUI())
			if err != nil {
				return err
			}
			if status.Status != events.StatusComplete {
				if status.Status == events.StatusCancelled {
					return errors.New("download cancelled")
				}
				return errors.New(status.Error)
			}
			return nil
		},
	}
	conn.bind(cmd)
	cmd.Flags().StringVar(&id, "id", "", "Transfer id (generated when empty)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing local file")
	return cmd
}

// runDownload starts one download, renders it and waits for its terminal
// event. Cancelling ctx cancels the transfer.
func runDownload(ctx context.Context, svc *services.SMBService, args services.DownloadArgs, ui *progress.DownloadUI) (*events.DownloadEvent, error) {
	bus := svc.EventBus()
	sub := bus.Subscribe(events.EventDownload)
	defer bus.Unsubscribe(events.EventDownload, sub)

	bar := ui.Track(args.DownloadID, args.FilePath, args.OutputPath)
	var last *events.DownloadEvent
	observeCtx, stopObserving := context.WithCancel(context.Background())
	defer stopObserving()
	observed := events.Observe(observeCtx, sub, events.Direct, func(e events.Event) {
		if de, ok := e.(*events.DownloadEvent); ok && de.DownloadID == args.DownloadID && de.Status.IsTerminal() {
			last = de
		}
		ui.Handle(e)
	})

	if err := svc.StartDownload(args); err != nil {
		return nil, err
	}

	select {
	case <-bar.Done():
	case <-ctx.Done():
		_ = svc.CancelDownload(services.CancelArgs{DownloadID: args.DownloadID})
		<-bar.Done()
	}
	ui.Wait()
	stopObserving()
	<-observed

	if last == nil {
		return nil, errkind.New(errkind.Unknown, "download", args.DownloadID, errors.New("no terminal event"))
	}
	return last, nil
}

// newFreeSpaceCmd creates the 'df' command.
func newFreeSpaceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "df [path]",
		Short: "Show free space where downloads would be written",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			svc := newService(cfg, "", nil)
			defer svc.Shutdown()

			usage, err := svc.FreeSpace(services.FreeSpaceArgs{Path: dir})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s free of %s\n",
				humanize.IBytes(uint64(usage.FreeBytes)), humanize.IBytes(uint64(usage.TotalBytes)))
			return nil
		},
	}
}
