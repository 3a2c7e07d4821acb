// Package headless opens browser sessions on headless Chrome via chromedp.
package headless

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/imgscout/internal/imagesearch"
)

// Config controls how Chrome is launched. It is fixed for the life of the Provider.
type Config struct {
	Headless          bool
	NoSandbox         bool
	DisableGPU        bool
	DisableDevShm     bool
	WindowWidth       int
	WindowHeight      int
	UserAgent         string
	ExecPath          string
	NavigationTimeout time.Duration
}

// runFunc executes chromedp actions; chromedp.Run outside of tests.
type runFunc func(ctx context.Context, actions ...chromedp.Action) error

// Provider implements imagesearch.SessionProvider. Each session gets its own
// browser process from a shared exec allocator.
type Provider struct {
	cfg         Config
	logger      *zap.Logger
	allocator   context.Context
	allocCancel context.CancelFunc
	run         runFunc
}

// NewProvider creates a Provider backed by chromedp.
func NewProvider(cfg Config, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	return &Provider{
		cfg:         cfg,
		logger:      logger,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		run:         chromedp.Run,
	}
}

// Close cancels the allocator context.
func (p *Provider) Close() {
	p.allocCancel()
}

// Open launches a browser and prepares a tab with the configured user agent
// and viewport.
func (p *Provider) Open(ctx context.Context) (imagesearch.Session, error) {
	taskCtx, taskCancel := chromedp.NewContext(p.allocator)
	s := &Session{
		cfg:     p.cfg,
		logger:  p.logger,
		taskCtx: taskCtx,
		cancel:  taskCancel,
		meta:    newResponseMeta(),
		runner:  p.run,
	}
	chromedp.ListenTarget(taskCtx, s.meta.captureEvent)

	if err := p.launch(ctx, taskCtx, taskCancel); err != nil {
		taskCancel()
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	return s, nil
}

// launch starts Chrome by running the setup action directly on taskCtx.
// chromedp binds the browser process to the context of the first Run, so that
// context must live until Close. The launch deadline and the caller's
// cancellation cancel taskCtx instead of a derived context.
func (p *Provider) launch(ctx, taskCtx context.Context, taskCancel context.CancelFunc) error {
	timer := time.AfterFunc(p.cfg.NavigationTimeout, taskCancel)
	stop := context.AfterFunc(ctx, taskCancel)
	err := p.run(taskCtx, p.setupAction())
	timedOut := !timer.Stop()
	canceled := !stop()
	switch {
	case canceled:
		return fmt.Errorf("chromedp run: %w", ctx.Err())
	case timedOut:
		return fmt.Errorf("chromedp run: startup exceeded %s: %w", p.cfg.NavigationTimeout, context.DeadlineExceeded)
	case err != nil:
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

func (p *Provider) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if p.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(p.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if p.cfg.WindowWidth > 0 && p.cfg.WindowHeight > 0 {
			if err := chromedp.EmulateViewport(int64(p.cfg.WindowWidth), int64(p.cfg.WindowHeight)).Do(ctx); err != nil {
				return fmt.Errorf("set viewport: %w", err)
			}
		}
		return nil
	})
}

// Session is one browser tab owned by a single Locate call.
type Session struct {
	cfg       Config
	logger    *zap.Logger
	taskCtx   context.Context
	cancel    context.CancelFunc
	meta      *responseMeta
	runner    runFunc
	closeOnce sync.Once
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, s.cfg.NavigationTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if status, finalURL := s.meta.snapshot(); status >= http.StatusBadRequest {
		s.logger.Warn("results page returned error status",
			zap.String("url", finalURL),
			zap.Int("status", status),
		)
	}
	return nil
}

// QueryAttributes reads attr from every element matching selector. Property
// values are preferred so src comes back absolute, as the page resolved it.
func (s *Session) QueryAttributes(ctx context.Context, selector, attr string) ([]string, error) {
	script, err := attributeScript(selector, attr)
	if err != nil {
		return nil, err
	}
	var values []string
	if err := s.run(ctx, s.cfg.NavigationTimeout, chromedp.Evaluate(script, &values)); err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	return values, nil
}

// Title returns the document title.
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.run(ctx, s.cfg.NavigationTimeout, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("read title: %w", err)
	}
	return title, nil
}

// Screenshot captures the viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, s.cfg.NavigationTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

// Close shuts the browser down. Subsequent calls are no-ops.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if err := chromedp.Cancel(s.taskCtx); err != nil {
			s.logger.Debug("graceful browser shutdown failed", zap.Error(err))
		}
		s.cancel()
	})
	return nil
}

// run executes actions on the tab, bounded by timeout and the caller's context.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.taskCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := s.runner(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("chromedp run: %w", ctx.Err())
		}
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

// attributeScript builds a DOM query that never blocks when nothing matches
// and throws on a malformed selector.
func attributeScript(selector, attr string) (string, error) {
	sel, err := json.Marshal(selector)
	if err != nil {
		return "", fmt.Errorf("encode selector: %w", err)
	}
	name, err := json.Marshal(attr)
	if err != nil {
		return "", fmt.Errorf("encode attribute: %w", err)
	}
	return fmt.Sprintf(
		`Array.from(document.querySelectorAll(%s)).map(e => { const v = e[%s]; return typeof v === "string" ? v : (e.getAttribute(%s) || ""); })`,
		sel, name, name,
	), nil
}

// chromeFlags lists the command-line switches passed to Chrome.
func chromeFlags(cfg Config) map[string]any {
	flags := map[string]any{
		"headless": false,
	}
	if cfg.Headless {
		flags["headless"] = "new"
	}
	if cfg.NoSandbox {
		flags["no-sandbox"] = true
	}
	if cfg.DisableGPU {
		flags["disable-gpu"] = true
	}
	if cfg.DisableDevShm {
		flags["disable-dev-shm-usage"] = true
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		flags["window-size"] = strconv.Itoa(cfg.WindowWidth) + "," + strconv.Itoa(cfg.WindowHeight)
	}
	return flags
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	flags := chromeFlags(cfg)
	for _, name := range slices.Sorted(maps.Keys(flags)) {
		opts = append(opts, chromedp.Flag(name, flags[name]))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshot() (int, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, m.url
}
