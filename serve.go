package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bits-gateway/internal/kafka"
	"bits-gateway/internal/server"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the payment verification consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			reader := kafka.NewReader(a.cfg.Kafka, a.cfg.Kafka.Topic.VerificationRequests)
			defer reader.Close()
			go kafka.ReadVerificationRequests(ctx, reader, a.verificationTask().Handle, a.logger)

			if a.cfg.Capture.Enabled {
				a.captureSweeper().Start(ctx)
			}

			srv := &http.Server{
				Addr:    ":" + a.cfg.Server.Port,
				Handler: server.New(a.processor, a.plugin, a.identityService(), a.logger).Routes(),
			}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					a.logger.Error("Error shutting down server", "error", err)
				}
			}()

			a.logger.Info("Starting server", "port", a.cfg.Server.Port)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}
