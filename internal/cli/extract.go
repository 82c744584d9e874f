package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/retro/rshop/internal/events"
	"github.com/retro/rshop/internal/progress"
	"github.com/retro/rshop/internal/services"
)

// newExtractCmd creates the 'extract' command.
func newExtractCmd() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "extract <archive> <target-dir>",
		Short: "Extract a zip or tar archive",
		Long: `Extract a zip, tar, tar.gz, tar.zst or tar.lz4 archive into a directory.

Entries that would be written outside the target directory are skipped.
Extraction stops when the decompressed size passes [extract] max_bytes.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			svc := newService(cfg, "", nil)
			defer svc.Shutdown()

			bus := svc.EventBus()
			sub := bus.Subscribe(events.EventExtract)
			bar := progress.NewExtractBar(args[0])
			observed := events.Observe(context.Background(), sub, events.Direct, bar.Handle)

			names, err := svc.ExtractArchive(GetContext(), services.ExtractArgs{ArchivePath: args[0], TargetPath: args[1]})

			// closing the subscription lets the observer drain what is buffered
			bus.Unsubscribe(events.EventExtract, sub)
			<-observed
			bar.Finish(err)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if list {
				for _, name := range names {
					fmt.Fprintln(out, name)
				}
			}
			fmt.Fprintf(out, "Extracted %d files to %s\n", len(names), args[1])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&list, "list", "l", false, "Print the extracted file names")
	return cmd
}
