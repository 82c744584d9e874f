package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/retro/rshop/internal/ipc"
	"github.com/retro/rshop/internal/metrics"
)

// newServeCmd creates the 'serve' command.
func newServeCmd() *cobra.Command {
	var socket string
	var metricsAddr string
	var localRoot string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the command protocol on stdio or a unix socket",
		Long: `Serve newline-delimited JSON requests.

Without --socket, requests are read from stdin and responses and events are
written to stdout; logs go to stderr. The session ends at end of input and
running downloads are cancelled.

Methods: ping, testConnection, listFiles, startDownload, cancelDownload,
extractArchive, freeSpace, activeDownloads.`,
		Example: `  echo '{"id":"1","method":"listFiles","args":{"host":"nas","share":"games"}}' | rshop serve
  rshop serve --socket /run/user/1000/rshop.sock --metrics-addr 127.0.0.1:9464`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := GetLogger()
			ctx := GetContext()

			var m *metrics.Metrics
			if metricsAddr != "" {
				m = metrics.New()
				mux := http.NewServeMux()
				mux.Handle("/metrics", m.Handler())
				httpServer := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error().Err(err).Str("addr", metricsAddr).Msg("Metrics listener failed")
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = httpServer.Shutdown(shutdownCtx)
				}()
				log.Info().Str("addr", metricsAddr).Msg("Serving metrics")
			}

			svc := newService(cfg, localRoot, m)
			defer svc.Shutdown()

			srv := ipc.NewServer(svc, svc.EventBus(), log.Named("ipc"))
			if socket != "" {
				return srv.ListenUnix(ctx, socket)
			}
			return srv.Serve(ctx, os.Stdin, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&socket, "socket", "", "Listen on this unix socket instead of stdio")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Expose prometheus metrics on this address")
	cmd.Flags().StringVar(&localRoot, "local-root", "", "Serve shares from subdirectories of this local directory instead of SMB")
	_ = cmd.Flags().MarkHidden("local-root")
	return cmd
}
