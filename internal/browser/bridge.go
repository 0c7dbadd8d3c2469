// Package browser drives a headless Chrome to answer web lookups.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// ErrNoResults is returned when a search page has no organic result.
var ErrNoResults = errors.New("no search results")

const defaultSearchTimeout = 30 * time.Second

// Bridge runs Chrome for each lookup.
type Bridge struct {
	profileDir string
	headless   bool
	timeout    time.Duration
	searchURL  string
	logger     *slog.Logger
}

type BridgeConfig struct {
	ProfileDir string // Chrome user data directory; empty uses a throwaway profile
	Headless   bool
	Timeout    time.Duration
	// SearchURL is the results page; the query is appended URL-escaped.
	SearchURL string
	Logger    *slog.Logger
}

func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSearchTimeout
	}
	if cfg.SearchURL == "" {
		cfg.SearchURL = "https://www.google.com/search?hl=en&q="
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Bridge{
		profileDir: cfg.ProfileDir,
		headless:   cfg.Headless,
		timeout:    cfg.Timeout,
		searchURL:  cfg.SearchURL,
		logger:     cfg.Logger,
	}
}

// NewContext creates a chromedp context. The caller must call cancel.
func (b *Bridge) NewContext(parent context.Context) (context.Context, context.CancelFunc) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"),
	)
	if b.profileDir != "" {
		if err := os.MkdirAll(b.profileDir, 0o755); err != nil {
			b.logger.Warn("failed to create profile dir", "dir", b.profileDir, "err", err)
		}
		opts = append(opts, chromedp.UserDataDir(b.profileDir))
	}
	if !b.headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, opts...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	return taskCtx, func() {
		taskCancel()
		allocCancel()
	}
}

// topResultJS returns the first outbound link of the results page. Result
// titles are h3 elements inside anchors.
const topResultJS = `(function() {
	var heads = document.querySelectorAll('a h3');
	for (var i = 0; i < heads.length; i++) {
		var a = heads[i].closest('a');
		if (a && a.href && a.href.indexOf('http') === 0) return a.href;
	}
	return '';
})()`

// TopResult loads the search page for query and returns the first result URL.
func (b *Bridge) TopResult(ctx context.Context, query string) (string, error) {
	taskCtx, cancel := b.NewContext(ctx)
	defer cancel()
	taskCtx, timeoutCancel := context.WithTimeout(taskCtx, b.timeout)
	defer timeoutCancel()

	var href string
	start := time.Now()
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(b.searchURL+url.QueryEscape(query)),
		chromedp.WaitReady("body"),
		chromedp.Evaluate(topResultJS, &href),
	)
	if err != nil {
		return "", fmt.Errorf("load results page: %w", err)
	}
	href = unwrapRedirect(strings.TrimSpace(href))
	b.logger.Debug("search finished", "query", query, "result", href, "elapsed", time.Since(start))
	if href == "" {
		return "", fmt.Errorf("%w for %q", ErrNoResults, query)
	}
	return href, nil
}

// unwrapRedirect turns a /url?q=<target> tracking link into its target.
func unwrapRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil || u.Path != "/url" {
		return href
	}
	if target := u.Query().Get("q"); target != "" {
		return target
	}
	if target := u.Query().Get("url"); target != "" {
		return target
	}
	return href
}
