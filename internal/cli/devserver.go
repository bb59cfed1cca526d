package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"petchat/internal/devserver"
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a local stub of the chat backend",
	Long: `Starts an in-memory stand-in for the production chat backend: the
same REST endpoints and WebSocket push protocol, seeded with a support agent.
Useful for developing and demoing the client without backend access.`,
	RunE: runDevserver,
}

func runDevserver(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	srv := devserver.NewServer(cfg, logger)
	srv.Seed()
	return srv.Run(ctx)
}
