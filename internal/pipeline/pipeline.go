// Package pipeline orchestrates one search: locate the image URLs once, fetch
// each image in order with a randomized pause between fetches, and save the
// ones the user asks for.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/imgscout/internal/imagesearch"
	"github.com/JakeFAU/imgscout/internal/metrics"
)

// ImageSaver persists a fetched image.
type ImageSaver interface {
	Save(ctx context.Context, query imagesearch.Query, position int, img *imagesearch.FetchedImage) (imagesearch.SavedFile, error)
}

// Deps are the collaborators of a Pipeline. History and Publisher are optional.
type Deps struct {
	Locator   imagesearch.Locator
	Fetcher   imagesearch.Fetcher
	Pacer     imagesearch.Pacer
	Saver     ImageSaver
	History   imagesearch.HistoryStore
	Publisher imagesearch.Publisher
	Clock     imagesearch.Clock
	IDs       imagesearch.IDGenerator
	Logger    *zap.Logger
}

// Pipeline runs searches end to end.
type Pipeline struct {
	deps   Deps
	logger *zap.Logger
}

// New validates deps and returns a Pipeline.
func New(deps Deps) (*Pipeline, error) {
	switch {
	case deps.Locator == nil:
		return nil, errors.New("locator is required")
	case deps.Fetcher == nil:
		return nil, errors.New("fetcher is required")
	case deps.Pacer == nil:
		return nil, errors.New("pacer is required")
	case deps.Saver == nil:
		return nil, errors.New("saver is required")
	case deps.Clock == nil:
		return nil, errors.New("clock is required")
	case deps.IDs == nil:
		return nil, errors.New("id generator is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{deps: deps, logger: logger}, nil
}

// Search validates the query and locates its image URLs. A blank query fails
// before any browser is started. A session-fatal locator failure is not an
// error here: it is reported in Search.Err with an empty ResultSet.
func (p *Pipeline) Search(ctx context.Context, raw string) (imagesearch.Search, error) {
	query, err := imagesearch.Normalize(raw)
	if err != nil {
		return imagesearch.Search{}, err
	}
	id, err := p.deps.IDs.NewID()
	if err != nil {
		return imagesearch.Search{}, fmt.Errorf("new search id: %w", err)
	}
	logger := p.logger.With(zap.String("search_id", id), zap.String("query", string(query)))
	logger.Info("search started")

	located := p.deps.Locator.Locate(ctx, query)
	search := imagesearch.Search{
		ID:         id,
		Query:      query,
		TargetURL:  located.TargetURL,
		Title:      located.Title,
		URLs:       located.URLs,
		Attempts:   located.Attempts,
		Screenshot: located.Screenshot,
		CreatedAt:  p.deps.Clock.Now(),
		Err:        located.Err,
	}
	if search.URLs == nil {
		search.URLs = imagesearch.ResultSet{}
	}

	outcome := "found"
	switch {
	case search.Err != nil:
		outcome = "error"
		logger.Error("search failed", zap.Error(search.Err))
	case search.Empty():
		outcome = "empty"
		logger.Warn("search found no images", zap.Int("strategies_tried", len(search.Attempts)))
	default:
		logger.Info("search finished", zap.Int("found", len(search.URLs)))
	}
	metrics.ObserveSearch(outcome)

	p.recordSearch(ctx, search, logger)
	p.publish(ctx, EventSearchCompleted, SearchCompleted{
		SearchID:  search.ID,
		Query:     string(search.Query),
		TargetURL: search.TargetURL,
		Found:     len(search.URLs),
		Strategy:  winningStrategy(search.Attempts),
		Error:     errText(search.Err),
		CreatedAt: search.CreatedAt,
	}, logger)
	return search, nil
}

// Display fetches every URL of search in order and hands each outcome to
// onOutcome as it completes. An empty ResultSet performs no fetches. A failed
// fetch never stops the batch; a done context stops it between items.
func (p *Pipeline) Display(ctx context.Context, search imagesearch.Search, onOutcome func(imagesearch.Outcome)) imagesearch.Summary {
	summary := imagesearch.Summary{Found: len(search.URLs)}
	if search.Empty() {
		summary.NoImages = true
		return summary
	}
	logger := p.logger.With(zap.String("search_id", search.ID))

	for i, url := range search.URLs {
		if ctx.Err() != nil {
			logger.Info("display canceled", zap.Int("index", i))
			break
		}
		if i > 0 {
			if err := p.deps.Pacer.Pause(ctx); err != nil {
				logger.Info("display canceled during pause", zap.Int("index", i))
				break
			}
		}
		outcome := p.fetch(ctx, i, url)
		if outcome.OK() {
			summary.Fetched++
		} else {
			summary.Failed++
			logger.Warn("image skipped",
				zap.Int("index", i),
				zap.String("url", url),
				zap.Error(outcome.Failure),
			)
		}
		if onOutcome != nil {
			onOutcome(outcome)
		}
	}
	return summary
}

// FetchAt fetches the image at a 1-based position of search.
func (p *Pipeline) FetchAt(ctx context.Context, search imagesearch.Search, position int) (imagesearch.Outcome, error) {
	if position < 1 || position > len(search.URLs) {
		return imagesearch.Outcome{}, fmt.Errorf("position %d of %d: %w", position, len(search.URLs), imagesearch.ErrIndexOutOfRange)
	}
	outcome := p.fetch(ctx, position-1, search.URLs[position-1])
	if outcome.Failure != nil {
		return outcome, outcome.Failure
	}
	return outcome, nil
}

// Save persists a successfully fetched outcome as
// "{sanitized_query}_{position}.jpg".
func (p *Pipeline) Save(ctx context.Context, search imagesearch.Search, outcome imagesearch.Outcome) (imagesearch.SavedFile, error) {
	if !outcome.OK() {
		return imagesearch.SavedFile{}, imagesearch.ErrNoImage
	}
	logger := p.logger.With(zap.String("search_id", search.ID), zap.Int("index", outcome.Index))
	saved, err := p.deps.Saver.Save(ctx, search.Query, outcome.Position(), outcome.Image)
	if err != nil {
		logger.Error("save failed", zap.Error(err))
		return imagesearch.SavedFile{}, fmt.Errorf("save image %d: %w", outcome.Position(), err)
	}
	metrics.ObserveSave()
	logger.Info("image saved", zap.String("uri", saved.URI))

	if p.deps.History != nil {
		if err := p.deps.History.RecordSave(ctx, imagesearch.SaveRecord{
			SearchID:  search.ID,
			Position:  saved.Position,
			SourceURL: saved.SourceURL,
			URI:       saved.URI,
			SavedAt:   saved.SavedAt,
		}); err != nil {
			logger.Warn("record save history", zap.Error(err))
		}
	}
	p.publish(ctx, EventImageSaved, ImageSaved{
		SearchID:  search.ID,
		Position:  saved.Position,
		SourceURL: saved.SourceURL,
		URI:       saved.URI,
		Filename:  saved.Filename,
		SHA256:    saved.SHA256,
		SavedAt:   saved.SavedAt,
	}, logger)
	return saved, nil
}

func (p *Pipeline) fetch(ctx context.Context, index int, url string) imagesearch.Outcome {
	outcome := imagesearch.Outcome{Index: index, URL: url}
	img, err := p.deps.Fetcher.Fetch(ctx, url)
	if err != nil {
		outcome.Failure = imagesearch.AsFetchError(url, err)
		return outcome
	}
	outcome.Image = &img
	return outcome
}

func (p *Pipeline) recordSearch(ctx context.Context, search imagesearch.Search, logger *zap.Logger) {
	if p.deps.History == nil {
		return
	}
	if err := p.deps.History.RecordSearch(ctx, imagesearch.SearchRecord{
		ID:        search.ID,
		Query:     string(search.Query),
		TargetURL: search.TargetURL,
		URLs:      search.URLs,
		Error:     errText(search.Err),
		CreatedAt: search.CreatedAt,
	}); err != nil {
		logger.Warn("record search history", zap.Error(err))
	}
}

func (p *Pipeline) publish(ctx context.Context, event string, payload any, logger *zap.Logger) {
	if p.deps.Publisher == nil {
		return
	}
	if _, err := p.deps.Publisher.Publish(ctx, event, payload); err != nil {
		logger.Warn("publish event", zap.String("event", event), zap.Error(err))
	}
}

func winningStrategy(attempts []imagesearch.StrategyAttempt) string {
	for _, a := range attempts {
		if a.Accepted > 0 {
			return a.Strategy
		}
	}
	return ""
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
