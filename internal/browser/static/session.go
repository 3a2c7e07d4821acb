// Package static implements browser sessions without JavaScript: the results
// page is fetched with colly and queried with goquery. It suits environments
// without Chrome and sites that render their results server-side.
package static

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/imgscout/internal/browser/detector"
	"github.com/JakeFAU/imgscout/internal/imagesearch"
)

// ErrScreenshotUnsupported is returned by Screenshot; there is nothing rendered to capture.
var ErrScreenshotUnsupported = errors.New("screenshots require a rendering browser")

// errNotLoaded is returned by queries issued before a successful Navigate.
var errNotLoaded = errors.New("no page loaded")

// Config controls the collector.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Provider implements imagesearch.SessionProvider using colly.
type Provider struct {
	cfg       Config
	logger    *zap.Logger
	transport http.RoundTripper
	detector  *detector.Heuristic
}

// NewProvider builds a Provider.
func NewProvider(cfg Config, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Provider{cfg: cfg, logger: logger, transport: newHTTPTransport(), detector: detector.NewHeuristic(0)}
}

// Open returns a fresh session.
func (p *Provider) Open(_ context.Context) (imagesearch.Session, error) {
	return &Session{cfg: p.cfg, logger: p.logger, transport: p.transport, detector: p.detector}, nil
}

// Session holds the most recently loaded document.
type Session struct {
	cfg       Config
	logger    *zap.Logger
	transport http.RoundTripper
	detector  *detector.Heuristic
	doc       *goquery.Document
	base      *url.URL
	// Rendered reports whether the last page looked script-rendered.
	Rendered bool
}

// Navigate fetches url; a non-2xx response is a navigation failure.
func (s *Session) Navigate(ctx context.Context, rawURL string) error {
	collector := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.UserAgent(s.cfg.UserAgent),
	)
	collector.WithTransport(s.transport)
	collector.SetRequestTimeout(s.cfg.Timeout)

	var (
		body     []byte
		status   int
		finalURL *url.URL
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
		status = r.StatusCode
		finalURL = r.Request.URL
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		fetchErr = err
	})

	if err := runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}
	s.doc = doc
	s.base = finalURL
	s.Rendered = s.detector != nil && s.detector.NeedsRendering(status, body)
	if s.Rendered {
		s.logger.Warn("results page looks script-rendered; browser.provider=chromedp may find more images",
			zap.String("url", rawURL))
	}
	s.logger.Debug("results page loaded", zap.String("url", rawURL), zap.Int("bytes", len(body)))
	return nil
}

// QueryAttributes reads attr from every matching element. URL-valued
// attributes are resolved against the page URL the way a browser would.
// goquery treats a malformed selector as matching nothing.
func (s *Session) QueryAttributes(_ context.Context, selector, attr string) ([]string, error) {
	if s.doc == nil {
		return nil, errNotLoaded
	}
	var values []string
	s.doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		value, ok := sel.Attr(attr)
		if !ok {
			values = append(values, "")
			return
		}
		values = append(values, s.resolve(attr, value))
	})
	return values, nil
}

// Title returns the text of the first <title> element.
func (s *Session) Title(_ context.Context) (string, error) {
	if s.doc == nil {
		return "", errNotLoaded
	}
	return strings.TrimSpace(s.doc.Find("title").First().Text()), nil
}

// Screenshot is not available without a renderer.
func (s *Session) Screenshot(_ context.Context) ([]byte, error) {
	return nil, ErrScreenshotUnsupported
}

// Close drops the loaded document.
func (s *Session) Close() error {
	s.doc = nil
	return nil
}

func (s *Session) resolve(attr, value string) string {
	switch attr {
	case "src", "href", "data-src", "data-lazy-src":
	default:
		return value
	}
	value = strings.TrimSpace(value)
	if s.base == nil || value == "" {
		return value
	}
	ref, err := url.Parse(value)
	if err != nil {
		return value
	}
	return s.base.ResolveReference(ref).String()
}

func runCollector(ctx context.Context, collector *colly.Collector, rawURL string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly visit canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
