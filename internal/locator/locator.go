// Package locator finds image URLs on a search-results page by trying an
// ordered list of selector strategies against a browser session.
package locator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/imgscout/internal/imagesearch"
	"github.com/JakeFAU/imgscout/internal/metrics"
)

// Options configures a Locator.
type Options struct {
	SearchURLTemplate string
	QuerySeparator    string
	Domain            string
	MaxResults        int
	ReadyTimeout      time.Duration
	PollInterval      time.Duration
	CaptureScreenshot bool
}

// Locator implements imagesearch.Locator.
type Locator struct {
	provider   imagesearch.SessionProvider
	strategies []Strategy
	opts       Options
	logger     *zap.Logger
}

// New validates the options and returns a Locator.
func New(provider imagesearch.SessionProvider, strategies []Strategy, opts Options, logger *zap.Logger) (*Locator, error) {
	if provider == nil {
		return nil, errors.New("session provider is required")
	}
	if len(strategies) == 0 {
		return nil, errors.New("at least one strategy is required")
	}
	if opts.SearchURLTemplate == "" {
		opts.SearchURLTemplate = imagesearch.DefaultSearchURLTemplate
	}
	if opts.QuerySeparator == "" {
		opts.QuerySeparator = "+"
	}
	if opts.Domain == "" {
		return nil, errors.New("domain is required")
	}
	if opts.MaxResults <= 0 || opts.MaxResults > imagesearch.MaxResults {
		opts.MaxResults = imagesearch.MaxResults
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locator{
		provider:   provider,
		strategies: strategies,
		opts:       opts,
		logger:     logger,
	}, nil
}

// Locate renders the results page for query and returns the first non-empty
// set of accepted URLs. It never fails outright: session-fatal problems are
// reported in LocateResult.Err with an empty ResultSet.
func (l *Locator) Locate(ctx context.Context, query imagesearch.Query) imagesearch.LocateResult {
	target := imagesearch.BuildSearchURL(l.opts.SearchURLTemplate, query, l.opts.QuerySeparator)
	result := imagesearch.LocateResult{TargetURL: target}
	logger := l.logger.With(zap.String("query", string(query)), zap.String("url", target))

	session, err := l.provider.Open(ctx)
	if err != nil {
		result.Err = &imagesearch.SessionError{Op: "open session", Err: err}
		logger.Error("browser session failed", zap.Error(err))
		return result
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.Warn("close browser session", zap.Error(cerr))
		}
	}()

	if err := session.Navigate(ctx, target); err != nil {
		result.Err = &imagesearch.SessionError{Op: "navigate", URL: target, Err: err}
		logger.Error("results page failed to load", zap.Error(err))
		return result
	}

	if !l.waitReady(ctx, session) {
		logger.Warn("no candidates before readiness timeout; continuing",
			zap.Duration("timeout", l.opts.ReadyTimeout))
	}

	if title, err := session.Title(ctx); err == nil {
		result.Title = title
		logger.Debug("results page loaded", zap.String("title", title))
	}
	if l.opts.CaptureScreenshot {
		shot, err := session.Screenshot(ctx)
		if err != nil {
			logger.Warn("capture screenshot", zap.Error(err))
		} else {
			result.Screenshot = shot
		}
	}

	result.URLs, result.Attempts = l.collect(ctx, session, logger)
	logger.Info("locate finished", zap.Int("found", len(result.URLs)))
	return result
}

// collect applies the strategies in order and stops at the first one that
// yields an accepted URL.
func (l *Locator) collect(ctx context.Context, page imagesearch.Page, logger *zap.Logger) (imagesearch.ResultSet, []imagesearch.StrategyAttempt) {
	attempts := make([]imagesearch.StrategyAttempt, 0, len(l.strategies))
	for _, strategy := range l.strategies {
		if ctx.Err() != nil {
			break
		}
		attempt := imagesearch.StrategyAttempt{Strategy: strategy.Name()}
		candidates, err := strategy.Candidates(ctx, page)
		if err != nil {
			attempt.Error = err.Error()
			attempts = append(attempts, attempt)
			logger.Warn("strategy failed", zap.String("strategy", strategy.Name()), zap.Error(err))
			continue
		}
		urls := l.accept(candidates)
		attempt.Matched = len(candidates)
		attempt.Accepted = len(urls)
		attempts = append(attempts, attempt)
		logger.Debug("strategy evaluated",
			zap.String("strategy", strategy.Name()),
			zap.Int("matched", attempt.Matched),
			zap.Int("accepted", attempt.Accepted),
		)
		if len(urls) > 0 {
			metrics.ObserveStrategyHit(strategy.Name())
			return urls, attempts
		}
	}
	return imagesearch.ResultSet{}, attempts
}

// accept filters, dedupes, and truncates candidates in discovery order.
func (l *Locator) accept(candidates []string) imagesearch.ResultSet {
	urls := make(imagesearch.ResultSet, 0, l.opts.MaxResults)
	for _, candidate := range candidates {
		if len(urls) == l.opts.MaxResults {
			break
		}
		if !imagesearch.Accept(candidate, l.opts.Domain) || urls.Contains(candidate) {
			continue
		}
		urls = append(urls, candidate)
	}
	return urls
}

// waitReady polls the strategies until one yields an accepted URL or the
// readiness timeout elapses. It reports whether the page became ready.
func (l *Locator) waitReady(ctx context.Context, page imagesearch.Page) bool {
	if l.opts.ReadyTimeout <= 0 {
		return true
	}
	deadline := time.NewTimer(l.opts.ReadyTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(l.opts.PollInterval)
	defer ticker.Stop()

	for {
		if l.probe(ctx, page) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-ticker.C:
		}
	}
}

func (l *Locator) probe(ctx context.Context, page imagesearch.Page) bool {
	for _, strategy := range l.strategies {
		candidates, err := strategy.Candidates(ctx, page)
		if err != nil {
			continue
		}
		for _, candidate := range candidates {
			if imagesearch.Accept(candidate, l.opts.Domain) {
				return true
			}
		}
	}
	return false
}

// Strategies builds CSS strategies from label/selector/attribute triples.
func Strategies(specs ...CSSStrategy) []Strategy {
	out := make([]Strategy, 0, len(specs))
	for _, spec := range specs {
		out = append(out, spec)
	}
	return out
}

