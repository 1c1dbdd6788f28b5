package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
)

var buildVersion = "dev"

func newRootCmd() *cobra.Command {
	a := &app{out: os.Stdout}
	cmd := &cobra.Command{
		Use:     "deskctl",
		Short:   "deskpulse workspace client",
		Long:    "Sync workspace records against a deskpulse API and watch live presence.",
		Version: buildVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultProfile := os.Getenv("DESKPULSE_PROFILE")
	if defaultProfile == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			defaultProfile = filepath.Join(dir, "deskpulse", "profile.yaml")
		}
	}
	cmd.PersistentFlags().String("profile", defaultProfile, "YAML profile (env DESKPULSE_PROFILE)")
	cmd.PersistentFlags().String("api", "", "API base URL (env DESKPULSE_API_URL)")
	cmd.PersistentFlags().String("token", "", "Bearer token (env DESKPULSE_TOKEN)")
	cmd.PersistentFlags().String("cache", "", "Snapshot cache file (env DESKPULSE_CACHE)")
	cmd.PersistentFlags().String("log-level", "warn", "Log level (debug|info|warn|error)")

	cmd.PersistentPreRunE = func(c *cobra.Command, _ []string) error {
		return a.load(c)
	}

	cmd.AddCommand(newCmdWorkspaces(a))
	cmd.AddCommand(newCmdSync(a))
	cmd.AddCommand(newCmdPut(a))
	cmd.AddCommand(newCmdDelete(a))
	cmd.AddCommand(newCmdPresence(a))
	cmd.AddCommand(newCmdDevToken(a))
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root := newRootCmd()
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
