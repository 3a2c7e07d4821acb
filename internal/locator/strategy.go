package locator

import (
	"context"
	"fmt"

	"github.com/JakeFAU/imgscout/internal/imagesearch"
)

// Strategy produces candidate image URLs from a loaded page.
type Strategy interface {
	Name() string
	Candidates(ctx context.Context, page imagesearch.Page) ([]string, error)
}

// CSSStrategy reads one attribute from every element matching a CSS selector.
type CSSStrategy struct {
	Label     string
	Selector  string
	Attribute string
}

// Name returns the label, or the selector when no label is set.
func (s CSSStrategy) Name() string {
	if s.Label != "" {
		return s.Label
	}
	return s.Selector
}

// Candidates queries the page.
func (s CSSStrategy) Candidates(ctx context.Context, page imagesearch.Page) ([]string, error) {
	attr := s.Attribute
	if attr == "" {
		attr = "src"
	}
	values, err := page.QueryAttributes(ctx, s.Selector, attr)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", s.Name(), err)
	}
	return values, nil
}
