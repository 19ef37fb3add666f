package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/valyala/fasthttp"

	"pension-calculation-engine/internal/config"
	"pension-calculation-engine/internal/engine"
	"pension-calculation-engine/internal/handler"
	"pension-calculation-engine/internal/logging"
	"pension-calculation-engine/internal/model"
	"pension-calculation-engine/internal/mutations"
	"pension-calculation-engine/internal/schemeregistry"
)

const shutdownTimeout = 10 * time.Second

var (
	configPath string
	pretty     bool

	rootCmd = &cobra.Command{
		Use:           "pension-engine",
		Short:         "Pension calculation engine",
		Long:          `Evaluates ordered batches of dossier mutations and returns the resulting situation with an audit trail.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	calculateCmd = &cobra.Command{
		Use:   "calculate [request.json]",
		Short: "Run one calculation request from a file and print the response",
		Args:  cobra.ExactArgs(1),
		RunE:  runCalculate,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	calculateCmd.Flags().BoolVar(&pretty, "pretty", false, "indent the response JSON")
	rootCmd.AddCommand(serveCmd, calculateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads configuration and wires the engine.
func setup() (config.Config, *slog.Logger, *engine.Engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, nil, err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	rates := schemeregistry.New(cfg.SchemeRegistryURL,
		schemeregistry.WithTimeout(cfg.SchemeRegistryTimeout),
		schemeregistry.WithRateLimit(cfg.SchemeRegistryRPS, max(int(cfg.SchemeRegistryRPS), 1)),
		schemeregistry.WithLogger(logger))

	eng := engine.New(mutations.NewRegistry(rates), engine.Options{
		PatchMode: cfg.Patches(),
		Logger:    logger,
	})
	return cfg, logger, eng, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, eng, err := setup()
	if err != nil {
		return err
	}

	h := handler.New(eng, logger)
	server := &fasthttp.Server{
		Handler:            h.Handle,
		Name:               "pension-engine",
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       30 * time.Second,
		MaxRequestBodySize: 16 << 20,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("pension engine starting",
			"addr", cfg.Addr(),
			"patch_mode", cfg.Patches().String(),
			"scheme_registry", cfg.SchemeRegistryURL != "")
		errCh <- server.ListenAndServe(cfg.Addr())
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func runCalculate(cmd *cobra.Command, args []string) error {
	_, _, eng, err := setup()
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	var req model.CalculationRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("decode request %s: %w", args[0], err)
	}
	if err := req.Validate(); err != nil {
		return err
	}

	resp := eng.Process(cmd.Context(), &req)

	out, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	if pretty {
		var buf bytes.Buffer
		if err := json.Indent(&buf, out, "", "  "); err != nil {
			return fmt.Errorf("indent response: %w", err)
		}
		out = buf.Bytes()
	}
	out = append(out, '\n')
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
