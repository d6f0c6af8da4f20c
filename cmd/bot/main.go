package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Tyrowin/lanchat/internal/bot"
	"github.com/Tyrowin/lanchat/internal/logging"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	selfTest := flag.Bool("test", false, "ask the model one question and exit")
	flag.Parse()

	code, err := run(wantSelfTest(*selfTest, flag.Args()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "LAN chat bot terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// wantSelfTest accepts "bot test" as well as "bot -test".
func wantSelfTest(flagSet bool, args []string) bool {
	return flagSet || (len(args) > 0 && args[0] == "test")
}

func run(selfTest bool) (int, error) {
	// Load local .env (dev only)
	_ = godotenv.Load()

	cfg, err := bot.LoadConfig()
	if err != nil {
		return exitConfig, err
	}

	logger := logging.New(cfg.AppEnv, cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("bot.config", "api", cfg.APIType, "url", cfg.APIURL, "model", cfg.Model, "server", cfg.ServerURL)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := bot.NewClient(cfg, logger)

	if selfTest {
		reply, err := client.Ping(ctx)
		if err != nil {
			return exitRuntime, fmt.Errorf("model did not reply: %w", err)
		}
		logger.Info("bot.ping_ok", "reply", reply)
		return exitOK, nil
	}

	participant := bot.NewParticipant(cfg, client, logger)
	if err := participant.Run(ctx); err != nil {
		return exitRuntime, err
	}
	return exitOK, nil
}
