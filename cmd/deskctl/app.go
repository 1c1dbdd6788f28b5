package main

import (
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/splax/deskpulse/internal/cache"
	"github.com/splax/deskpulse/internal/repository"
	"github.com/splax/deskpulse/internal/service/session"
	apiclient "github.com/splax/deskpulse/pkg/api/client"
	"github.com/splax/deskpulse/pkg/config"
	jwtpkg "github.com/splax/deskpulse/pkg/jwt"
	"github.com/splax/deskpulse/pkg/logger"
)

var errNoUser = errors.New("no user: pass --token or set DESKPULSE_TOKEN")

// app carries the resolved configuration shared by every command.
type app struct {
	cfg config.ClientConfig
	log *slog.Logger
	out io.Writer
}

// load resolves configuration: environment, then the YAML profile, then flags.
func (a *app) load(c *cobra.Command) error {
	cfg := config.LoadClientConfig()
	profile, _ := c.Flags().GetString("profile")
	cfg, err := config.MergeProfile(cfg, profile)
	if err != nil {
		return err
	}
	if v, _ := c.Flags().GetString("api"); v != "" {
		cfg.APIBaseURL = v
	}
	if v, _ := c.Flags().GetString("token"); v != "" {
		cfg.Token = v
	}
	if v, _ := c.Flags().GetString("cache"); v != "" {
		cfg.CachePath = v
	}
	if cfg.Token != "" && (cfg.UserID == "" || cfg.DisplayName == "") {
		if claims, err := jwtpkg.Inspect(cfg.Token); err == nil {
			if cfg.UserID == "" {
				cfg.UserID = claims.UserID
			}
			if cfg.DisplayName == "" {
				cfg.DisplayName = claims.DisplayName
			}
		}
	}
	level, _ := c.Flags().GetString("log-level")
	a.log = logger.New("deskctl", logger.ParseLevel(level), logger.WithText(), logger.WithWriter(os.Stderr))
	a.cfg = cfg
	return nil
}

func (a *app) apiClient() (*apiclient.Client, error) {
	return apiclient.New(a.cfg.APIBaseURL, apiclient.WithToken(a.cfg.Token))
}

// openSession builds a Session over the API, warmed from the snapshot cache
// when one is configured. The returned func releases both.
func (a *app) openSession() (*session.Session, func(), error) {
	if a.cfg.UserID == "" {
		return nil, nil, errNoUser
	}
	cli, err := a.apiClient()
	if err != nil {
		return nil, nil, err
	}
	var snapshots session.SnapshotStore
	closeCache := func() {}
	if a.cfg.CachePath != "" {
		var opts []cache.Option
		if a.cfg.CacheKey != "" {
			opts = append(opts, cache.WithSealKey(a.cfg.CacheKey))
		}
		store, err := cache.Open(a.cfg.CachePath, a.log, opts...)
		if err != nil {
			a.log.Warn("snapshot cache unavailable", "path", a.cfg.CachePath, "error", err)
		} else {
			snapshots = store
			closeCache = func() {
				if err := store.Close(); err != nil {
					a.log.Warn("closing snapshot cache failed", "error", err)
				}
			}
		}
	}
	sess := session.New(a.cfg.UserID, repository.NewStores(cli, a.log), session.Options{
		Cache:        snapshots,
		Logger:       a.log,
		FetchTimeout: a.cfg.FetchTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
	})
	return sess, func() {
		sess.Close()
		closeCache()
	}, nil
}
