package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/mattn/go-shellwords"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/pagelens/pkg/dom"
	"github.com/nextlevelbuilder/pagelens/pkg/identity"
)

var (
	// ErrNotRunning is returned by page operations before Start.
	ErrNotRunning = errors.New("browser not running")
	// ErrUnknownIndex is returned when an index has no recorded identity,
	// usually because no snapshot was taken since the last navigation.
	ErrUnknownIndex = errors.New("unknown index")
	// ErrTabNotFound is returned for a target id the browser does not have.
	ErrTabNotFound = errors.New("tab not found")
)

const tracerName = "github.com/nextlevelbuilder/pagelens/pkg/browser"

// Manager handles the Chrome browser lifecycle and page management.
type Manager struct {
	mu         sync.Mutex
	browser    *rod.Browser
	pages      map[string]*rod.Page // targetID → page
	headless   bool
	remoteURL  string
	extraFlags string
	extractCfg dom.Config

	// listPages fetches the open tabs; swapped in tests.
	listPages func(*rod.Browser) (rod.Pages, error)

	records RecordStore
	tokens  *tokenCounter
	tracer  trace.Tracer
	logger  *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithHeadless sets headless mode (default false).
func WithHeadless(h bool) Option {
	return func(m *Manager) { m.headless = h }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithRemoteURL connects to an already running Chrome at the given
// DevTools websocket URL instead of launching one.
func WithRemoteURL(u string) Option {
	return func(m *Manager) { m.remoteURL = u }
}

// WithExtraFlags passes extra Chrome flags, written as a shell command
// line ("--lang=en --window-size=1280,800").
func WithExtraFlags(s string) Option {
	return func(m *Manager) { m.extraFlags = s }
}

// WithIdentityStore replaces the in-process record store.
func WithIdentityStore(s RecordStore) Option {
	return func(m *Manager) { m.records = s }
}

// WithExtractConfig sets the filter thresholds and detectors.
func WithExtractConfig(cfg dom.Config) Option {
	return func(m *Manager) { m.extractCfg = cfg }
}

// WithTokenCounting reports tiktoken counts of snapshot trees using the
// named encoding (e.g. "cl100k_base"). Empty disables counting.
func WithTokenCounting(encoding string) Option {
	return func(m *Manager) {
		if encoding == "" {
			m.tokens = nil
			return
		}
		m.tokens = newTokenCounter(encoding)
	}
}

// New creates a Manager with options.
func New(opts ...Option) *Manager {
	m := &Manager{
		pages:      make(map[string]*rod.Page),
		extractCfg: dom.DefaultConfig(),
		listPages:  (*rod.Browser).Pages,
		tracer:     otel.Tracer(tracerName),
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	if m.records == nil {
		m.records = NewRefStore(defaultMaxRefStoreSize)
	}
	if m.tokens != nil {
		m.tokens.logger = m.logger
	}
	return m
}

// SetExtractConfig swaps the extraction config used by later snapshots.
func (m *Manager) SetExtractConfig(cfg dom.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extractCfg = cfg
}

// Start launches a Chrome browser, or connects to the remote one.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		return fmt.Errorf("browser already running")
	}

	controlURL := m.remoteURL
	if controlURL == "" {
		l := launcher.New().
			Headless(m.headless).
			Set("disable-gpu").
			Set("no-first-run").
			Set("no-default-browser-check")
		if err := applyExtraFlags(l, m.extraFlags); err != nil {
			return err
		}

		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launch Chrome: %w", err)
		}
		controlURL = u
		m.logger.Info("Chrome launched", "cdp", controlURL, "headless", m.headless)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("connect to Chrome: %w", err)
	}
	if m.remoteURL != "" {
		m.logger.Info("connected to remote Chrome", "cdp", controlURL)
	}

	m.browser = b
	return nil
}

// applyExtraFlags parses a shell-style flag string into launcher flags.
func applyExtraFlags(l *launcher.Launcher, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	args, err := shellwords.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse extra flags: %w", err)
	}
	for _, arg := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			l.Set(flags.Flag(name), value)
		} else {
			l.Set(flags.Flag(name))
		}
	}
	return nil
}

// Stop closes the Chrome browser. A remote browser is left running.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser == nil {
		return nil
	}

	var err error
	if m.remoteURL == "" {
		err = m.browser.Close()
	}
	m.browser = nil
	m.pages = make(map[string]*rod.Page)
	return err
}

// Status returns current browser status.
func (m *Manager) Status() *StatusInfo {
	m.mu.Lock()
	b := m.browser
	m.mu.Unlock()

	if b == nil {
		return &StatusInfo{Running: false}
	}

	pages, _ := m.listPages(b)
	info := &StatusInfo{
		Running: true,
		Tabs:    len(pages),
		Remote:  m.remoteURL != "",
	}
	if len(pages) > 0 {
		if pageInfo, err := pages[0].Info(); err == nil {
			info.URL = pageInfo.URL
		}
	}
	return info
}

// ListTabs returns all open tabs.
func (m *Manager) ListTabs(ctx context.Context) ([]TabInfo, error) {
	m.mu.Lock()
	b := m.browser
	m.mu.Unlock()

	if b == nil {
		return nil, ErrNotRunning
	}

	pages, err := m.listPages(b)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}

	tabs := make([]TabInfo, 0, len(pages))
	m.mu.Lock()
	for _, p := range pages {
		m.pages[string(p.TargetID)] = p
	}
	m.mu.Unlock()

	for _, p := range pages {
		info, err := p.Info()
		if err != nil || info == nil {
			continue
		}
		tabs = append(tabs, TabInfo{
			TargetID: string(p.TargetID),
			URL:      info.URL,
			Title:    info.Title,
		})
	}
	return tabs, nil
}

// OpenTab opens a new tab with the given URL.
func (m *Manager) OpenTab(ctx context.Context, url string) (*TabInfo, error) {
	m.mu.Lock()
	b := m.browser
	m.mu.Unlock()

	if b == nil {
		return nil, ErrNotRunning
	}

	// The page outlives the request, so it is not bound to ctx.
	page, err := b.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}

	if err := page.Context(ctx).WaitStable(300 * time.Millisecond); err != nil {
		return nil, fmt.Errorf("wait stable: %w", err)
	}
	tid := string(page.TargetID)
	m.mu.Lock()
	m.pages[tid] = page
	m.mu.Unlock()

	tab := &TabInfo{TargetID: tid, URL: url}
	if info, _ := page.Info(); info != nil {
		tab.URL = info.URL
		tab.Title = info.Title
	}
	m.logger.Debug("tab opened", "target", tid, "url", tab.URL)
	return tab, nil
}

// CloseTab closes a tab and forgets its identity record.
func (m *Manager) CloseTab(ctx context.Context, targetID string) error {
	page, err := m.page(targetID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.pages, string(page.TargetID))
	m.mu.Unlock()

	if err := m.records.Delete(ctx, string(page.TargetID)); err != nil {
		m.logger.Warn("drop identity record failed", "target", page.TargetID, "error", err)
	}
	return page.Close()
}

// Screenshot captures a page screenshot as PNG bytes.
func (m *Manager) Screenshot(ctx context.Context, targetID string, fullPage bool) ([]byte, error) {
	page, err := m.page(targetID)
	if err != nil {
		return nil, err
	}

	return page.Context(ctx).Screenshot(fullPage, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

// Navigate navigates a page to a URL. Indices from earlier snapshots of
// the tab stop resolving.
func (m *Manager) Navigate(ctx context.Context, targetID, url string) error {
	page, err := m.page(targetID)
	if err != nil {
		return err
	}

	p := page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if err := p.WaitStable(300 * time.Millisecond); err != nil {
		return fmt.Errorf("wait stable after navigate: %w", err)
	}
	if err := m.records.Delete(ctx, string(page.TargetID)); err != nil {
		m.logger.Warn("drop identity record failed", "target", page.TargetID, "error", err)
	}
	return nil
}

// Resolver returns an identity resolver bound to a tab.
func (m *Manager) Resolver(targetID string) (*identity.Resolver, error) {
	page, err := m.page(targetID)
	if err != nil {
		return nil, err
	}
	return identity.New(identity.NewPageOpener(page), identity.WithLogger(m.logger)), nil
}

// Close shuts down the browser if running.
func (m *Manager) Close() error {
	return m.Stop(context.Background())
}

// Records returns the identity record store.
func (m *Manager) Records() RecordStore {
	return m.records
}

// page looks up a page by targetID, or returns the first tab when targetID
// is empty. A cache miss refreshes the page list from the browser without
// holding m.mu.
func (m *Manager) page(targetID string) (*rod.Page, error) {
	m.mu.Lock()
	b := m.browser
	p, ok := m.pages[targetID]
	m.mu.Unlock()

	if b == nil {
		return nil, ErrNotRunning
	}
	if targetID != "" && ok {
		return p, nil
	}

	pages, err := m.listPages(b)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	m.mu.Lock()
	for _, p := range pages {
		m.pages[string(p.TargetID)] = p
	}
	p, ok = m.pages[targetID]
	m.mu.Unlock()

	if targetID != "" {
		if ok {
			return p, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrTabNotFound, targetID)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no tabs open", ErrTabNotFound)
	}
	return pages[0], nil
}
