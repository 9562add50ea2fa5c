package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/gaspardpetit/llmgate/internal/api"
	"github.com/gaspardpetit/llmgate/internal/config"
	"github.com/gaspardpetit/llmgate/internal/logx"
	"github.com/gaspardpetit/llmgate/internal/ollama"
	"github.com/gaspardpetit/llmgate/internal/server"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	fs := flag.CommandLine
	showVersion := fs.Bool("version", false, "print version and exit")
	fs.Usage = func() {
		_, _ = fmt.Fprintf(fs.Output(), "llmgate version=%s sha=%s date=%s\n\n", version, buildSHA, buildDate)
		fs.PrintDefaults()
	}
	cfg, err := config.Load(fs, os.Args[1:])
	if *showVersion {
		fmt.Printf("llmgate version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}
	logx.Setup(logx.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Dir: cfg.LogDir})
	if err != nil {
		logx.Log.Fatal().Err(err).Msg("load config")
	}

	validator, err := api.NewValidator()
	if err != nil {
		logx.Log.Fatal().Err(err).Msg("load request schema")
	}
	info := api.VersionInfo{Version: version, BuildSHA: buildSHA, BuildDate: buildDate, InstanceID: uuid.NewString()}
	client := ollama.New(cfg.GenerateURL, cfg.RequestTimeout)
	gw := server.New(cfg, client, validator, info)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: gw.Handler, ReadHeaderTimeout: 10 * time.Second}
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", gw.MetricsHandler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logx.Log.Info().Dur("timeout", cfg.ShutdownTimeout).Msg("shutting down; send SIGTERM again to terminate immediately")
		cancel()
		<-sigCh
		logx.Log.Warn().Msg("termination requested")
		os.Exit(1)
	}()

	errCh := make(chan error, 2)
	go func() { errCh <- serve(srv, "api") }()
	if metricsSrv != nil {
		go func() { errCh <- serve(metricsSrv, "metrics") }()
	}
	logx.Log.Info().
		Str("addr", cfg.ListenAddr).
		Str("generate_url", cfg.GenerateURL).
		Dur("request_timeout", cfg.RequestTimeout).
		Str("instance_id", info.InstanceID).
		Str("version", version).
		Msg("gateway starting")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logx.Log.Fatal().Err(err).Msg("server exited")
		}
	}

	sctx, scancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer scancel()
	if err := srv.Shutdown(sctx); err != nil {
		logx.Log.Error().Err(err).Msg("api shutdown")
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(sctx); err != nil {
			logx.Log.Error().Err(err).Msg("metrics shutdown")
		}
	}
	logx.Log.Info().Msg("gateway stopped")
}

func serve(srv *http.Server, name string) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server on %s: %w", name, srv.Addr, err)
	}
	return nil
}
