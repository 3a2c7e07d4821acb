// Package display renders fetched images for the terminal: a text grid that
// fills row by row as outcomes arrive, and a JPEG contact sheet of the batch.
package display

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/JakeFAU/imgscout/internal/imagesearch"
)

// DefaultColumns is the grid width used when none is configured.
const DefaultColumns = 3

const cellWidth = 30

// Grid writes outcomes as cells of a fixed-column grid.
type Grid struct {
	tw      *tabwriter.Writer
	columns int
	row     []string
}

// NewGrid returns a Grid writing to w. Columns below 1 use DefaultColumns.
func NewGrid(w io.Writer, columns int) *Grid {
	if columns < 1 {
		columns = DefaultColumns
	}
	return &Grid{
		tw:      tabwriter.NewWriter(w, cellWidth, 0, 2, ' ', 0),
		columns: columns,
	}
}

// Add places one outcome in the next cell and emits the row once it is full.
func (g *Grid) Add(o imagesearch.Outcome) error {
	g.row = append(g.row, Cell(o))
	if len(g.row) < g.columns {
		return nil
	}
	return g.flushRow()
}

// Flush emits a partially filled final row.
func (g *Grid) Flush() error {
	if len(g.row) == 0 {
		return nil
	}
	return g.flushRow()
}

func (g *Grid) flushRow() error {
	line := strings.Join(g.row, "\t") + "\t\n"
	g.row = g.row[:0]
	if _, err := io.WriteString(g.tw, line); err != nil {
		return fmt.Errorf("write grid row: %w", err)
	}
	if err := g.tw.Flush(); err != nil {
		return fmt.Errorf("flush grid row: %w", err)
	}
	return nil
}

// Cell formats an outcome as "[position] WxH format size" or the failure.
func Cell(o imagesearch.Outcome) string {
	if !o.OK() {
		return fmt.Sprintf("[%d] failed (%s)", o.Position(), failureLabel(o.Failure))
	}
	img := o.Image
	return fmt.Sprintf("[%d] %dx%d %s %s", o.Position(), img.Width(), img.Height(), img.Format, humanBytes(img.Bytes))
}

// Summary writes the closing line of a batch, or the no-results guidance.
func Summary(w io.Writer, s imagesearch.Summary) error {
	var err error
	if s.NoImages {
		_, err = fmt.Fprintf(w, "%s\n%s\n", imagesearch.NoImagesMessage, imagesearch.NoImagesHint)
	} else {
		_, err = fmt.Fprintf(w, "%d found, %d shown, %d failed\n", s.Found, s.Fetched, s.Failed)
	}
	if err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

func failureLabel(fe *imagesearch.FetchError) string {
	if fe == nil {
		return "no image"
	}
	if fe.Kind == imagesearch.FailureStatus {
		return fmt.Sprintf("status %d", fe.StatusCode)
	}
	return string(fe.Kind)
}

func humanBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}
