// Command sample serves configurable CRUD resources over HTTP with the
// OpenAPI document and Prometheus metrics alongside.
//
// Run:
//
//	go run ./cmd/sample serve
//	go run ./cmd/sample serve --config sample.yaml --addr :9090
//
// Print the OpenAPI document:
//
//	go run ./cmd/sample spec
//	go run ./cmd/sample spec --format yaml -o openapi.yaml
//
// Then explore:
//
//	GET  http://localhost:8080/wp-json/acme/v1/openapi.json
//	GET  http://localhost:8080/wp-json/acme/v1/articles?fields=id,title&sort=-date
//	POST http://localhost:8080/wp-json/acme/v1/articles
//	GET  http://localhost:8080/wp-json/acme/v1/products/1
//	GET  http://localhost:8080/metrics
//	GET  http://localhost:8080/docs
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bjaus/restroute/openapi"
)

const appName = "sample"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Serve CRUD resources declared in a YAML config.",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().String("config", "", "path to a YAML config (default: built-in demo)")
	cmd.AddCommand(newServeCommand(), newSpecCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return serve(ctx, cfg, newLogger(cfg.LogLevel, cmd.ErrOrStderr()))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func newSpecCommand() *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "spec",
		Short: "Print the OpenAPI document.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := newApp(ctx, cfg, newLogger("error", cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer a.close()

			doc, err := a.document()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output) //nolint:gosec // user-provided CLI flag
				if err != nil {
					return err
				}
				defer func() {
					if err := f.Close(); err != nil {
						slog.Error("failed to close output file", "err", err)
					}
				}()
				w = f
			}
			return writeDocument(w, doc, format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func configFrom(cmd *cobra.Command) (Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return Config{}, err
	}
	return LoadConfig(path)
}

func writeDocument(w io.Writer, doc openapi.Document, format string) error {
	switch strings.ToLower(format) {
	case "json", "":
		return openapi.WriteJSON(w, doc)
	case "yaml", "yml":
		return openapi.WriteYAML(w, doc)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func serve(ctx context.Context, cfg Config, logger *slog.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	h, err := a.handler()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.Addr, "spec", cfg.Prefix+"/"+cfg.Namespace+"/openapi.json")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
