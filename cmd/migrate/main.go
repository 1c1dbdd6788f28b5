package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/splax/deskpulse/internal/app/migrate"
	"github.com/splax/deskpulse/pkg/config"
	"github.com/splax/deskpulse/pkg/logger"
)

func main() {
	command := flag.String("command", "up", "migrate command (up|status|down)")
	timeout := flag.Duration("timeout", time.Minute, "command timeout")
	target := flag.Int64("target", 0, "target version for down command (optional)")
	flag.Parse()

	cfg := config.LoadAPIConfig()
	log := logger.New("migrate", slog.LevelInfo, logger.WithFormat(cfg.LogFormat))

	if err := run(*command, *timeout, *target, cfg, log); err != nil {
		log.Error("migration command failed", "command", *command, "error", err)
		os.Exit(1)
	}
	log.Info("migration command completed", "command", *command)
}

func run(command string, timeout time.Duration, target int64, cfg config.APIConfig, log *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	runner, err := migrate.New(cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		return fmt.Errorf("configure migration runner: %w", err)
	}
	defer runner.Close()

	if err := runner.Ping(ctx); err != nil {
		return err
	}

	switch command {
	case "up":
		return runner.Ensure(ctx)
	case "status":
		states, err := runner.Status(ctx)
		if err != nil {
			return err
		}
		for _, st := range states {
			state := "pending"
			if st.Applied {
				state = "applied " + st.AppliedAt.Format(time.RFC3339)
			}
			fmt.Printf("%05d  %-40s %s\n", st.Version, st.Path, state)
		}
		return nil
	case "down":
		return runner.Down(ctx, target)
	default:
		return fmt.Errorf("unsupported command %q", command)
	}
}
