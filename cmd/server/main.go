package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Tyrowin/lanchat/internal/logging"
	"github.com/Tyrowin/lanchat/internal/server"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "LAN chat server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// Load local .env (dev only)
	_ = godotenv.Load()

	cfg, err := server.NewConfigFromEnv()
	if err != nil {
		return exitConfig, err
	}
	server.SetConfig(cfg)
	active := server.CurrentConfig()

	logger := logging.New(active.Env, active.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hub := server.NewHub(logger)
	go hub.Run()

	srv := server.CreateServer(active.Port, server.SetupRoutes(hub))

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server.lan_url", "url", fmt.Sprintf("http://%s%s", server.LANAddress(), active.Port))
		if err := server.StartServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("server.shutdown.start")
	case err := <-serveErr:
		runErr = err
		logger.Error("server.crash", "err", err)
	}

	if err := server.ShutdownServer(srv, active.ShutdownTimeout); err != nil {
		logger.Warn("server.http_shutdown_failed", "err", err)
	}
	if err := hub.Shutdown(active.ShutdownTimeout); err != nil {
		logger.Warn("server.hub_shutdown_failed", "err", err)
	}
	logger.Info("server.shutdown.complete")

	if runErr != nil {
		return exitRuntime, runErr
	}
	return exitOK, nil
}
