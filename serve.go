package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/logger"
	"github.com/spf13/cobra"

	"github.com/gregLibert/eid-sim/pkg/server"
)

var (
	listenFlag string
	httpFlag   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the card to terminals over TCP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Flags().Changed("listen") {
			cfg.Listen = listenFlag
		}
		if cmd.Flags().Changed("http") {
			cfg.HTTP = httpFlag
		}

		proc, err := cfg.buildCard()
		if err != nil {
			return err
		}
		srv := server.New(proc)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ln, err := net.Listen("tcp", cfg.Listen)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.Listen, err)
		}

		if cfg.HTTP != "" {
			admin := &http.Server{
				Addr:              cfg.HTTP,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				logger.Infof("admin API listening on %s", cfg.HTTP)
				if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Errorf("admin API failed: %v", err)
					stop()
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := admin.Shutdown(shutdownCtx); err != nil {
					logger.Warningf("admin API shutdown: %v", err)
				}
			}()
		}

		fmt.Fprintf(cmd.OutOrStdout(), "eidsim listening on %s\n", ln.Addr())
		return srv.ServeTerminals(ctx, ln)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&listenFlag, "listen", "l", "", fmt.Sprintf("terminal address (default :%d)", server.DefaultPort))
	serveCmd.Flags().StringVar(&httpFlag, "http", "", "admin API address, e.g. :8080")
}
