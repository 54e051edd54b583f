// Package scrape drives headless Chrome against market portals that render
// their price tables client-side, where a plain HTTP GET returns an empty
// shell.
package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
)

// Portal fetches rendered page text through a persistent Chrome profile.
type Portal struct {
	profileDir string
	logger     *slog.Logger
}

type PortalConfig struct {
	ProfileDir string // Chrome user data directory (persists cookies/sessions)
	Logger     *slog.Logger
}

func NewPortal(cfg PortalConfig) *Portal {
	if cfg.ProfileDir == "" {
		home, _ := os.UserHomeDir()
		cfg.ProfileDir = filepath.Join(home, ".agribot", "chrome-profiles", "default")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Portal{
		profileDir: cfg.ProfileDir,
		logger:     cfg.Logger,
	}
}

func (p *Portal) newContext(parent context.Context) (context.Context, context.CancelFunc) {
	if err := os.MkdirAll(p.profileDir, 0o755); err != nil {
		p.logger.Error("failed to create profile dir", "dir", p.profileDir, "err", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Headless,
		chromedp.UserDataDir(p.profileDir),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
		chromedp.UserAgent("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, opts...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	return taskCtx, func() {
		taskCancel()
		allocCancel()
	}
}

// FetchText navigates to url, waits for the given selector to render, and
// returns the element's inner text.
func (p *Portal) FetchText(ctx context.Context, url, selector string) (string, error) {
	taskCtx, cancel := p.newContext(ctx)
	defer cancel()

	taskCtx, taskCancel := context.WithTimeout(taskCtx, 45*time.Second)
	defer taskCancel()

	if selector == "" {
		selector = "body"
	}

	var text string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Sleep(1*time.Second),
		chromedp.Text(selector, &text, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("scrape %s: %w", url, err)
	}

	p.logger.Debug("scraped portal page", "url", url, "chars", len(text))
	return text, nil
}
