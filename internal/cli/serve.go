package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cairn/internal/server"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var (
		listen  string
		noWatch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket API",
		Long: `Start the cairn API server.

The server exposes thread generation, resume and inspection over REST,
streams events over WebSocket and prunes stale checkpoints on the
configured schedule. Log level and permission mode are reloaded when the
config file changes.`,
		Example: `  cairn serve
  cairn serve --listen 0.0.0.0:8420`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("CLI context not initialized")
			}
			cfg := cliCtx.Config
			if listen != "" {
				cfg.Server.Listen = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			stack, err := cliCtx.Stack(ctx)
			if err != nil {
				return err
			}
			srv, err := server.New(cfg, stack, server.Options{Version: Version, Watch: !noWatch})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "cairn %s listening on %s\n", Version, cfg.Server.Listen)
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (overrides server.listen)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload the config file on change")

	return cmd
}
