package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/imgscout/internal/display"
	"github.com/JakeFAU/imgscout/internal/imagesearch"
	"github.com/JakeFAU/imgscout/internal/pipeline"
)

type searchOptions struct {
	columns      int
	save         string
	saveAll      bool
	contactSheet string
	thumbSize    int
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search for images and show them as a grid",
		Long: `Finds up to 20 images for the query, downloads them one at a time, and prints
one grid cell per image. Use --save with 1-based positions to keep images as
JPEG files named {query}_{position}.jpg in the output directory.`,
		Example: `  imgscout search sunset beach
  imgscout search "mountain lake" --columns 4 --save 1,3
  imgscout search cats --save-all --contact-sheet cats.jpg`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), opts)
		},
	}
	cmd.Flags().IntVar(&opts.columns, "columns", 0, "grid columns (default from display.columns)")
	cmd.Flags().StringVar(&opts.save, "save", "", "comma-separated 1-based positions to save, e.g. 1,3,5")
	cmd.Flags().BoolVar(&opts.saveAll, "save-all", false, "save every image that was fetched")
	cmd.Flags().StringVar(&opts.contactSheet, "contact-sheet", "", "write a JPEG contact sheet of the grid to this path")
	cmd.Flags().IntVar(&opts.thumbSize, "thumb-size", 240, "contact sheet cell size in pixels")
	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	positions, err := parsePositions(opts.save)
	if err != nil {
		return err
	}
	cfg := appInstance.Config()
	if opts.columns <= 0 {
		opts.columns = cfg.Display.Columns
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	p := appInstance.Pipeline()
	logger := appInstance.Logger()

	search, err := p.Search(ctx, query)
	if err != nil {
		return err
	}
	writeScreenshot(out, logger, search, cfg.Browser.ScreenshotPath)
	if search.Err != nil {
		fmt.Fprintf(out, "Search for %q failed.\n", search.Query)
		return fmt.Errorf("search %q: %w", search.Query, search.Err)
	}

	fmt.Fprintf(out, "%d images for %q from %s\n", len(search.URLs), search.Query, search.TargetURL)
	grid := display.NewGrid(out, opts.columns)
	outcomes := make([]imagesearch.Outcome, 0, len(search.URLs))
	summary := p.Display(ctx, search, func(o imagesearch.Outcome) {
		outcomes = append(outcomes, o)
		if err := grid.Add(o); err != nil {
			logger.Warn("grid write failed", zap.Error(err))
		}
	})
	if err := grid.Flush(); err != nil {
		return err
	}
	if err := display.Summary(out, summary); err != nil {
		return err
	}
	if summary.NoImages {
		return nil
	}

	if opts.contactSheet != "" {
		if err := writeContactSheet(out, outcomes, opts, cfg.Output.JPEGQuality); err != nil {
			return err
		}
	}

	if opts.saveAll {
		positions = positions[:0]
		for _, o := range outcomes {
			if o.OK() {
				positions = append(positions, o.Position())
			}
		}
	}
	return saveSelected(cmd, p, search, outcomes, positions)
}

func saveSelected(cmd *cobra.Command, p *pipeline.Pipeline, search imagesearch.Search, outcomes []imagesearch.Outcome, positions []int) error {
	out := cmd.OutOrStdout()
	byPosition := make(map[int]imagesearch.Outcome, len(outcomes))
	for _, o := range outcomes {
		byPosition[o.Position()] = o
	}
	saved := 0
	for _, pos := range positions {
		o, ok := byPosition[pos]
		switch {
		case !ok:
			fmt.Fprintf(out, "skip [%d]: no such image\n", pos)
			continue
		case !o.OK():
			fmt.Fprintf(out, "skip [%d]: image was not fetched\n", pos)
			continue
		}
		file, err := p.Save(cmd.Context(), search, o)
		if err != nil {
			fmt.Fprintf(out, "save [%d] failed: %v\n", pos, err)
			continue
		}
		saved++
		fmt.Fprintf(out, "saved [%d] -> %s\n", pos, file.URI)
	}
	if len(positions) > 0 && saved == 0 {
		return fmt.Errorf("no images saved")
	}
	return nil
}

func writeContactSheet(out io.Writer, outcomes []imagesearch.Outcome, opts searchOptions, quality int) error {
	sheet, err := display.ContactSheet(outcomes, display.SheetOptions{
		Columns: opts.columns,
		Cell:    opts.thumbSize,
		Padding: 8,
	})
	if err != nil {
		fmt.Fprintf(out, "contact sheet skipped: %v\n", err)
		return nil
	}
	format, err := imaging.FormatFromFilename(opts.contactSheet)
	if err != nil {
		return fmt.Errorf("write contact sheet: %w", err)
	}
	if err := writeOutputFile(opts.contactSheet, func(w io.Writer) error {
		return imaging.Encode(w, sheet, format, imaging.JPEGQuality(quality))
	}); err != nil {
		return fmt.Errorf("write contact sheet: %w", err)
	}
	fmt.Fprintf(out, "contact sheet -> %s\n", opts.contactSheet)
	return nil
}

func writeScreenshot(out io.Writer, logger *zap.Logger, search imagesearch.Search, path string) {
	if path == "" || len(search.Screenshot) == 0 {
		return
	}
	if err := os.WriteFile(path, search.Screenshot, outputFileMode); err != nil {
		logger.Warn("write screenshot failed", zap.String("path", path), zap.Error(err))
		return
	}
	fmt.Fprintf(out, "screenshot -> %s\n", path)
}

// outputFileMode is the permission for files the CLI writes, the same as the
// local blob store uses for saved images.
const outputFileMode os.FileMode = 0o600

func writeOutputFile(path string, write func(io.Writer) error) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, outputFileMode)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// parsePositions reads "1,3,5" into sorted unique positions.
func parsePositions(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	seen := map[int]bool{}
	var out []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("--save positions must be positive integers, got %q", part)
		}
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out, nil
}
