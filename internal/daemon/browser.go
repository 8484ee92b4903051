package daemon

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alexkorol/last-closed-tabgroups/internal/cdp"
	"github.com/alexkorol/last-closed-tabgroups/internal/config"
	"github.com/alexkorol/last-closed-tabgroups/internal/platform"
)

// Browser is one live connection to the browser's windowing service.
type Browser interface {
	platform.WindowService
	Refresher
	// Done is closed once the connection dropped and every window it
	// tracked was reported closed.
	Done() <-chan struct{}
	// Name describes the browser, e.g. "Chrome/126.0.6478.126".
	Name() string
	Close() error
}

// Connector opens a Browser using the current configuration.
type Connector func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Browser, error)

type cdpBrowser struct {
	*cdp.Host
	conn *cdp.Conn
	name string
}

func (b *cdpBrowser) Name() string { return b.name }

func (b *cdpBrowser) Close() error { return b.conn.Close() }

// ConnectCDP discovers the DevTools endpoint at cfg.DevToolsURL, attaches to
// the browser target and starts tracking windows.
func ConnectCDP(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Browser, error) {
	ver, err := cdp.Discover(ctx, cfg.DevToolsURL)
	if err != nil {
		return nil, err
	}
	conn, err := cdp.Dial(ctx, ver.WebSocketDebuggerURL)
	if err != nil {
		return nil, err
	}

	host := cdp.NewHost(conn, cdp.Options{
		CloseDebounce:       cfg.CloseDebounce,
		RecentlyClosedLimit: cfg.RecentlyClosedLimit,
		Logger:              logger,
	})
	if err := host.Start(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("attach to %s: %w", ver.WebSocketDebuggerURL, err)
	}

	name := ver.Browser
	if name == "" {
		name = "unknown"
	}
	return &cdpBrowser{Host: host, conn: conn, name: name}, nil
}
