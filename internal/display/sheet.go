package display

import (
	"errors"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/JakeFAU/imgscout/internal/imagesearch"
)

// ErrEmptySheet is returned when no outcome carries an image.
var ErrEmptySheet = errors.New("contact sheet has no images")

// SheetOptions controls the contact sheet layout.
type SheetOptions struct {
	Columns int
	// Cell is the side of the square each thumbnail is fitted into.
	Cell    int
	Padding int
}

var sheetBackground = color.NRGBA{R: 24, G: 24, B: 24, A: 255}

// ContactSheet lays out the successful outcomes as thumbnails on a grid. Each
// image keeps its slot by position, so failed fetches leave a gap.
func ContactSheet(outcomes []imagesearch.Outcome, opts SheetOptions) (*image.NRGBA, error) {
	if opts.Columns < 1 {
		opts.Columns = DefaultColumns
	}
	if opts.Cell < 16 {
		opts.Cell = 240
	}
	if opts.Padding < 0 {
		opts.Padding = 0
	}

	slots := 0
	hasImage := false
	for _, o := range outcomes {
		if o.Index+1 > slots {
			slots = o.Index + 1
		}
		if o.OK() {
			hasImage = true
		}
	}
	if !hasImage {
		return nil, ErrEmptySheet
	}

	rows := (slots + opts.Columns - 1) / opts.Columns
	stride := opts.Cell + opts.Padding
	sheet := imaging.New(opts.Columns*stride+opts.Padding, rows*stride+opts.Padding, sheetBackground)

	for _, o := range outcomes {
		if !o.OK() {
			continue
		}
		thumb := imaging.Fit(o.Image.Image, opts.Cell, opts.Cell, imaging.Lanczos)
		col, row := o.Index%opts.Columns, o.Index/opts.Columns
		x := opts.Padding + col*stride + (opts.Cell-thumb.Bounds().Dx())/2
		y := opts.Padding + row*stride + (opts.Cell-thumb.Bounds().Dy())/2
		sheet = imaging.Paste(sheet, thumb, image.Pt(x, y))
	}
	return sheet, nil
}
