// Package stealth provides the anti-detection browsing session the crawl
// runs on: a headless browser with fingerprint randomization, human-paced
// delays, and optional interaction simulation.
package stealth

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"aerocrawl/internal/config"
	"aerocrawl/internal/types"
)

// fallbackUserAgents is used when the configuration supplies none.
var fallbackUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// viewports are common desktop dimensions; one is drawn per session.
var viewports = []struct{ w, h int }{
	{1920, 1080}, {1366, 768}, {1536, 864},
	{1440, 900}, {1280, 720}, {2560, 1440},
}

// Launcher acquires browsing sessions.
type Launcher struct {
	cfg    config.StealthConfig
	logger *slog.Logger
}

// NewLauncher creates a session launcher from stealth configuration.
func NewLauncher(cfg config.StealthConfig, logger *slog.Logger) *Launcher {
	return &Launcher{
		cfg:    cfg,
		logger: logger.With("component", "stealth"),
	}
}

// Acquire launches a browser and returns a scoped Session. The caller must
// Close it on every exit path. Launch failure is a TransportError and fatal
// for the run.
func (l *Launcher) Acquire(ctx context.Context) (*Session, error) {
	vp := viewports[rand.Intn(len(viewports))]

	agents := l.cfg.UserAgents
	if len(agents) == 0 {
		agents = fallbackUserAgents
	}
	ua := agents[rand.Intn(len(agents))]

	ln := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-blink-features", "AutomationControlled").
		Set("window-size", fmt.Sprintf("%d,%d", vp.w, vp.h))

	if l.cfg.RotateProxy && len(l.cfg.ProxyList) > 0 {
		proxy := l.cfg.ProxyList[rand.Intn(len(l.cfg.ProxyList))]
		ln = ln.Proxy(proxy)
		l.logger.Debug("session proxy selected", "proxy", proxy)
	}

	controlURL, err := ln.Launch()
	if err != nil {
		return nil, &types.TransportError{Err: fmt.Errorf("launch browser: %w", err)}
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, &types.TransportError{Err: fmt.Errorf("connect browser: %w", err)}
	}

	l.logger.Info("session acquired",
		"viewport", fmt.Sprintf("%dx%d", vp.w, vp.h),
		"stealth", l.cfg.StealthMode,
	)

	return &Session{
		browser:   browser,
		cfg:       l.cfg,
		userAgent: ua,
		width:     vp.w,
		height:    vp.h,
		logger:    l.logger,
	}, nil
}

// Session is one anti-detection browser session. It is a scoped resource:
// Close releases the underlying browser.
type Session struct {
	browser   *rod.Browser
	cfg       config.StealthConfig
	userAgent string
	width     int
	height    int
	logger    *slog.Logger
}

// UserAgent returns the user agent chosen for this session.
func (s *Session) UserAgent() string { return s.userAgent }

// Close shuts the browser down.
func (s *Session) Close() error {
	if s.browser == nil {
		return nil
	}
	return s.browser.Close()
}

// Think suspends the caller for a uniformly random duration in [min, max],
// emulating human pacing before and after navigation. The latency is the
// point, not a side effect. It returns early only on context cancellation.
func (s *Session) Think(ctx context.Context, min, max time.Duration) error {
	d := min
	if max > min {
		d = min + time.Duration(rand.Int63n(int64(max-min)))
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ThinkDefault applies the configured request delay range.
func (s *Session) ThinkDefault(ctx context.Context) error {
	return s.Think(ctx, s.cfg.RequestDelayMin, s.cfg.RequestDelayMax)
}

// NewPage opens a stealth-patched page and navigates it to url. Navigation
// carries a mandatory timeout; failure to reach the page at all is a
// TransportError.
func (s *Session) NewPage(ctx context.Context, url string, timeout time.Duration) (*rod.Page, error) {
	var page *rod.Page
	var err error
	if s.cfg.StealthMode {
		page, err = stealth.Page(s.browser)
	} else {
		page, err = s.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		return nil, &types.TransportError{URL: url, Err: fmt.Errorf("open page: %w", err), Retryable: true}
	}
	page = page.Context(ctx)

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: s.userAgent}); err != nil {
		s.logger.Warn("failed to set user agent", "error", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             s.width,
		Height:            s.height,
		DeviceScaleFactor: 1,
	}); err != nil {
		s.logger.Warn("failed to set viewport", "error", err)
	}

	if err := page.Timeout(timeout).Navigate(url); err != nil {
		_ = page.Close()
		return nil, &types.TransportError{URL: url, Err: err, Retryable: true}
	}
	if err := page.Timeout(timeout).WaitStable(300 * time.Millisecond); err != nil {
		s.logger.Warn("page stability timeout, continuing", "url", url, "error", err)
	}

	if s.cfg.PageLoadDelay > 0 {
		if err := s.Think(ctx, s.cfg.PageLoadDelay, s.cfg.PageLoadDelay); err != nil {
			_ = page.Close()
			return nil, err
		}
	}

	return page, nil
}

// SimulateInteraction performs randomized scrolling and pointer movement
// on the page when enabled by configuration. Errors are swallowed: a
// failed jiggle never fails a fetch.
func (s *Session) SimulateInteraction(page *rod.Page) {
	if page == nil {
		return
	}

	if s.cfg.RandomScroll {
		steps := 2 + rand.Intn(3)
		for i := 0; i < steps; i++ {
			if _, err := page.Eval(`() => window.scrollBy(0, window.innerHeight / 2)`); err != nil {
				return
			}
			time.Sleep(time.Duration(200+rand.Intn(400)) * time.Millisecond)
		}
		// Small upward correction, then bottom to trigger lazy loading.
		_, _ = page.Eval(`() => window.scrollBy(0, -200)`)
		_, _ = page.Eval(`() => window.scrollTo(0, document.body.scrollHeight)`)
	}

	if s.cfg.RandomMouse {
		for i := 0; i < 3; i++ {
			x := float64(rand.Intn(s.width-100) + 50)
			y := float64(rand.Intn(s.height-100) + 50)
			if err := page.Mouse.MoveTo(proto.Point{X: x, Y: y}); err != nil {
				return
			}
			time.Sleep(time.Duration(100+rand.Intn(200)) * time.Millisecond)
		}
	}
}
