package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"enswap/pkg/relay"
)

var (
	relayAddr    string
	relayDevMode bool
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the same-origin relay in front of the aggregator",
	Long: `Serve /api/quote, /api/swap, /api/price and /api/healthcheck, forwarding
each request to the aggregator with the configured API key attached
server-side.

Point relay_url at this server so quote requests try it first.

Examples:
  enswap relay
  enswap relay --addr 127.0.0.1:3001`,
	RunE: runRelay,
}

func init() {
	rootCmd.AddCommand(relayCmd)

	relayCmd.Flags().StringVar(&relayAddr, "addr", "", "Listen address (default from config)")
	relayCmd.Flags().BoolVar(&relayDevMode, "dev", false, "Include upstream error details in responses")
}

func runRelay(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	rc := cfg.Relay()
	if relayAddr != "" {
		rc.Addr = relayAddr
	}
	rc.DevMode = relayDevMode
	if rc.APIKey == "" {
		logger.Warn("no api_key configured; upstream calls will be unauthenticated")
	}

	srv, err := relay.NewServer(rc, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down relay")
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.WithError(err).Error("relay shutdown failed")
		return err
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.WaitClosed(waitCtx); err != nil {
		logger.WithError(err).Warn("relay did not close in time")
	}
	logger.Info("relay stopped")
	return nil
}
