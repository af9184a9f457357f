package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/casebook/api"
)

var flagPort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&flagPort, "port", 8080, "HTTP server port")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	docs, closeStore, err := openStore(cmd.Context())
	if err != nil {
		log.Error().Err(err).Msg("store unavailable")
		os.Exit(exitStore)
	}
	defer closeStore()

	if len(cfg.AllowedEmails) == 0 {
		log.Warn().Msg("no allowed_emails configured; every caller is accepted")
	}

	handler := api.NewHandler(newService(docs), &cfg, log)
	if cfg.Scenarios {
		if r, ok := docs.(api.Resetter); ok {
			handler.EnableScenarios(r)
			log.Warn().Msg("demo scenarios enabled; loading one wipes the store")
		} else {
			log.Warn().Str("store", cfg.Store).Msg("store cannot be reset; scenarios stay disabled")
		}
	}
	router := api.NewRouter(handler, cfg.CORSOrigins)

	server := api.NewServer(fmt.Sprintf(":%d", cfg.Port), router)

	errc := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Str("store", cfg.Store).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errc:
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}
