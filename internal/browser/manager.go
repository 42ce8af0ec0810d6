// Package browser drives a headless Chrome through rod for page captures
// and sandboxed JavaScript execution.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"lynxbot/internal/logging"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

// ErrInvalidURL is returned when an address cannot be turned into an http(s) URL.
var ErrInvalidURL = errors.New("invalid web address")

// Config holds browser configuration.
type Config struct {
	// DebuggerURL connects to a running Chrome instead of launching one.
	DebuggerURL string
	// Bin is the Chrome binary; empty lets rod find or download one.
	Bin string
	// Flags are extra launch flags, "name=value" or "name".
	Flags []string

	Headless          bool
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:          true,
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		NavigationTimeout: 30 * time.Second,
	}
}

// GetViewportWidth returns viewport width.
func (c Config) GetViewportWidth() int {
	if c.ViewportWidth == 0 {
		return 1920
	}
	return c.ViewportWidth
}

// GetViewportHeight returns viewport height.
func (c Config) GetViewportHeight() int {
	if c.ViewportHeight == 0 {
		return 1080
	}
	return c.ViewportHeight
}

// GetNavigationTimeout returns the navigation timeout.
func (c Config) GetNavigationTimeout() time.Duration {
	if c.NavigationTimeout == 0 {
		return 30 * time.Second
	}
	return c.NavigationTimeout
}

// Manager owns one Chrome instance. Every operation runs in its own
// incognito context that is closed afterwards.
type Manager struct {
	cfg        Config
	mu         sync.RWMutex
	browser    *rod.Browser
	controlURL string
}

// NewManager creates a manager. Chrome is started lazily.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// Start connects to an existing Chrome or launches a new one.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		logging.BrowserWarn("stale browser connection detected, reconnecting")
		_ = m.browser.Close()
		m.browser = nil
		m.controlURL = ""
	}

	controlURL := m.cfg.DebuggerURL
	if controlURL == "" {
		launch := launcher.New().Headless(m.cfg.Headless)
		if m.cfg.Bin != "" {
			launch = launch.Bin(m.cfg.Bin)
		}
		for _, rawFlag := range m.cfg.Flags {
			name, val, hasVal := strings.Cut(strings.TrimLeft(rawFlag, "-"), "=")
			if hasVal {
				launch = launch.Set(flags.Flag(name), val)
			} else {
				launch = launch.Set(flags.Flag(name))
			}
		}
		u, err := launch.Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	m.browser = browser
	m.controlURL = controlURL
	logging.Browser("browser connected: %s", controlURL)
	return nil
}

func (m *Manager) ensureStarted(ctx context.Context) (*rod.Browser, error) {
	m.mu.RLock()
	b := m.browser
	m.mu.RUnlock()
	if b != nil {
		return b, nil
	}
	// Chrome outlives the request that happened to start it.
	if err := m.Start(context.WithoutCancel(ctx)); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser, nil
}

// IsConnected returns whether the browser is connected.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser != nil
}

// Shutdown closes the browser.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	m.controlURL = ""
	return err
}

// newPage opens a page in a fresh incognito context. The returned func
// closes both.
func (m *Manager) newPage(ctx context.Context, target string) (*rod.Page, func(), error) {
	b, err := m.ensureStarted(ctx)
	if err != nil {
		return nil, nil, err
	}
	incognito, err := b.Incognito()
	if err != nil {
		return nil, nil, fmt.Errorf("incognito context: %w", err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{URL: target})
	if err != nil {
		_ = incognito.Close()
		return nil, nil, fmt.Errorf("create page: %w", err)
	}
	cleanup := func() {
		_ = page.Close()
		_ = incognito.Close()
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.GetViewportWidth(),
		Height:            m.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		logging.BrowserWarn("failed to set viewport: %v", err)
	}
	return page.Context(ctx), cleanup, nil
}

// Screenshot loads address and returns a PNG capture. fullPage captures
// the whole scrollable page instead of the viewport.
func (m *Manager) Screenshot(ctx context.Context, address string, fullPage bool) ([]byte, error) {
	target, err := NormalizeURL(address)
	if err != nil {
		return nil, err
	}
	logging.Browser("screenshotting %s (full=%v)", target, fullPage)
	timer := logging.StartTimer(logging.CategoryBrowser, "Screenshot")
	defer timer.StopWithThreshold(10 * time.Second)

	page, cleanup, err := m.newPage(ctx, "about:blank")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	nav := page.Timeout(m.cfg.GetNavigationTimeout())
	if err := nav.Navigate(target); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", target, err)
	}
	if err := nav.WaitLoad(); err != nil {
		logging.BrowserWarn("page %s did not finish loading: %v", target, err)
	}

	png, err := page.Screenshot(fullPage, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot %s: %w", target, err)
	}
	return png, nil
}

// consoleCollector runs code with console output captured. Code is
// evaluated as a global script; a thrown error is reported as a line.
const consoleCollector = `async (code) => {
	const out = [];
	const fmt = (a) => {
		if (typeof a === 'string') return a;
		try { return JSON.stringify(a); } catch (e) { return String(a); }
	};
	const keys = ['log', 'info', 'warn', 'error', 'debug'];
	const saved = keys.map((k) => console[k]);
	keys.forEach((k) => { console[k] = (...args) => { out.push(args.map(fmt).join(' ')); }; });
	try {
		const result = await (0, eval)(code);
		if (result !== undefined) out.push('=> ' + fmt(result));
	} catch (e) {
		out.push('Uncaught ' + e);
	} finally {
		keys.forEach((k, i) => { console[k] = saved[i]; });
	}
	return out;
}`

// ExecuteJS runs js on a blank page and returns the console output, one
// entry per console call, followed by the script's value if it has one.
func (m *Manager) ExecuteJS(ctx context.Context, js string) ([]string, error) {
	if strings.TrimSpace(js) == "" {
		return nil, errors.New("no javascript to execute")
	}
	logging.BrowserDebug("executing %d bytes of javascript", len(js))

	page, cleanup, err := m.newPage(ctx, "about:blank")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	res, err := page.Timeout(m.cfg.GetNavigationTimeout()).Evaluate(rod.Eval(consoleCollector, js).ByPromise())
	if err != nil {
		return nil, fmt.Errorf("evaluate javascript: %w", err)
	}

	return consoleLines(res.Value), nil
}

func consoleLines(v gson.JSON) []string {
	items := v.Arr()
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, item.Str())
	}
	return lines
}

// NormalizeURL returns address as an absolute http(s) URL, adding
// https:// when no scheme is given.
func NormalizeURL(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	if u, err := url.Parse(address); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return u.String(), nil
	}
	if strings.Contains(address, "://") {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, address)
	}
	u, err := url.Parse("https://" + address)
	if err != nil || u.Host == "" || strings.ContainsAny(u.Host, " \t") {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, address)
	}
	return u.String(), nil
}
