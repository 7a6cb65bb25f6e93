// internal/browser/manager.go

// Package browser launches headless Chrome instances over the DevTools
// protocol and exposes a narrow session surface for form-driving workflows.
package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/accountsmith/api/schemas"
	"github.com/xkilldash9x/accountsmith/internal/config"
)

// Manager owns browser process creation. A weighted semaphore caps how many
// Chrome instances run at once regardless of how many bots a job spawns.
type Manager struct {
	cfg config.BrowserConfig
	log *zap.Logger
	sem *semaphore.Weighted
}

// NewManager builds a manager from the browser configuration.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Manager{
		cfg: cfg,
		log: logger.Named("browser"),
		sem: semaphore.NewWeighted(int64(concurrency)),
	}
}

// execOptions assembles the Chrome launch flags. Extra flags from the
// config's args list are parsed as either key=value or boolean switches.
func (m *Manager) execOptions(proxy string) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(m.cfg.Width, m.cfg.Height),
	}
	if m.cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if proxy != "" {
		opts = append(opts, chromedp.ProxyServer(proxy))
	}
	for _, arg := range m.cfg.Args {
		key, value, found := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if found {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(key, true))
		}
	}
	return opts
}

// Launch starts a fresh Chrome instance, optionally routed through the
// given proxy, and returns its session. Blocks until a concurrency slot is
// free or the context is cancelled. The semaphore slot is released when the
// session closes.
func (m *Manager) Launch(ctx context.Context, proxy string) (schemas.SessionContext, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for a browser slot: %w", err)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), m.execOptions(proxy)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Force the browser process to actually start so launch failures
	// surface here rather than on the first interaction.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		m.sem.Release(1)
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	s := newSession(browserCtx, m.cfg.FieldWait, m.log, func() {
		browserCancel()
		allocCancel()
		m.sem.Release(1)
	})
	m.log.Info("Browser launched",
		zap.String("session_id", s.ID()),
		zap.Bool("headless", m.cfg.Headless),
		zap.String("proxy", proxy),
	)
	return s, nil
}
