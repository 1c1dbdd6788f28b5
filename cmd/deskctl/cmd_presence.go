package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/splax/deskpulse/internal/domain"
	"github.com/splax/deskpulse/internal/service/presence"
	"github.com/splax/deskpulse/internal/ws"
)

func newCmdPresence(a *app) *cobra.Command {
	var (
		duration time.Duration
		x, y     float64
		wander   bool
	)
	cmd := &cobra.Command{
		Use:   "presence WORKSPACE_ID",
		Short: "Join a workspace's presence channel and show who is online",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			dialer, err := ws.NewDialer(a.cfg.APIBaseURL, a.cfg.Token, 64, a.log)
			if err != nil {
				return err
			}
			r := newPeerRenderer(os.Stdout)
			client := presence.New(dialer, presence.Identity{
				DisplayName: a.cfg.DisplayName,
				Color:       a.cfg.Color,
			}, presence.Options{
				Logger:          a.log,
				FrameInterval:   a.cfg.FrameInterval,
				PublishInterval: a.cfg.PublishInterval,
				SweepInterval:   a.cfg.SweepInterval,
				PeerTTL:         a.cfg.PeerTTL,
				OnChange:        r.render,
			})

			ctx := c.Context()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			client.Join(ctx, args[0])
			if !client.Connected() {
				return errors.New("presence channel unavailable")
			}
			defer client.Leave()

			client.Move(x, y)
			r.render(nil)
			if wander {
				go wanderPointer(ctx, client, x, y)
			}
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().DurationVar(&duration, "for", 0, "Leave after this long (0 waits for interrupt)")
	cmd.Flags().Float64Var(&x, "x", 0, "Pointer x in logical coordinates")
	cmd.Flags().Float64Var(&y, "y", 0, "Pointer y in logical coordinates")
	cmd.Flags().BoolVar(&wander, "wander", false, "Move the pointer in a circle around x,y")
	return cmd
}

func wanderPointer(ctx context.Context, client *presence.Client, cx, cy float64) {
	ticker := time.NewTicker(presence.DefaultPublishInterval)
	defer ticker.Stop()
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			angle := now.Sub(start).Seconds()
			client.Move(cx+100*math.Cos(angle), cy+100*math.Sin(angle))
		}
	}
}

// peerRenderer redraws the peer list in place on a terminal and prints one
// line per change otherwise.
type peerRenderer struct {
	mu  sync.Mutex
	out io.Writer
	fd  int
	tty bool
}

func newPeerRenderer(f *os.File) *peerRenderer {
	fd := int(f.Fd())
	return &peerRenderer{out: f, fd: fd, tty: term.IsTerminal(fd)}
}

func (r *peerRenderer) render(peers []domain.PeerPresence) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.tty {
		names := make([]string, 0, len(peers))
		for _, p := range peers {
			names = append(names, fmt.Sprintf("%s(%.0f,%.0f)", peerLabel(p), p.X, p.Y))
		}
		fmt.Fprintf(r.out, "%s peers=%d %s\n", time.Now().Format(time.TimeOnly), len(peers), strings.Join(names, " "))
		return
	}
	width, height, err := term.GetSize(r.fd)
	if err != nil || width <= 0 {
		width, height = 80, 24
	}
	var b strings.Builder
	b.WriteString("\x1b[H\x1b[2J")
	fmt.Fprintf(&b, "%d peer(s) online\r\n", len(peers))
	for i, p := range peers {
		if i >= height-2 {
			fmt.Fprintf(&b, "... %d more\r\n", len(peers)-i)
			break
		}
		line := fmt.Sprintf("  %-24s x=%7.1f y=%7.1f  %s", peerLabel(p), p.X, p.Y, p.Color)
		b.WriteString(truncate(line, width))
		b.WriteString("\r\n")
	}
	_, _ = io.WriteString(r.out, b.String())
}

// truncate cuts s to at most width runes.
func truncate(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	r := []rune(s)
	return string(r[:max(width, 0)])
}

func peerLabel(p domain.PeerPresence) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.PeerID
}
