package cmd

import (
	"bytes"
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/imgscout/internal/clock"
	"github.com/JakeFAU/imgscout/internal/config"
	"github.com/JakeFAU/imgscout/internal/imagesearch"
	"github.com/JakeFAU/imgscout/internal/pipeline"
	"github.com/JakeFAU/imgscout/internal/saver"
	"github.com/JakeFAU/imgscout/internal/storage/memory"
)

type stubLocator struct {
	result imagesearch.LocateResult
}

func (s stubLocator) Locate(context.Context, imagesearch.Query) imagesearch.LocateResult {
	return s.result
}

type stubFetcher struct {
	missing map[string]bool
}

func (s stubFetcher) Fetch(_ context.Context, url string) (imagesearch.FetchedImage, error) {
	if s.missing[url] {
		return imagesearch.FetchedImage{}, &imagesearch.FetchError{URL: url, Kind: imagesearch.FailureStatus, StatusCode: 404}
	}
	return imagesearch.FetchedImage{URL: url, Image: image.NewRGBA(image.Rect(0, 0, 4, 3)), Format: "png", Bytes: 100}, nil
}

type stubIDs struct{}

func (stubIDs) NewID() (string, error) { return "search-1", nil }

type fakeApp struct {
	cfg      config.Config
	pipeline *pipeline.Pipeline
	history  *memory.HistoryStore
	blobs    *memory.BlobStore
	closed   bool
}

func (f *fakeApp) Close(context.Context) { f.closed = true }
func (f *fakeApp) Config() config.Config { return f.cfg }
func (f *fakeApp) Logger() *zap.Logger { return zap.NewNop() }
func (f *fakeApp) Pipeline() *pipeline.Pipeline { return f.pipeline }
func (f *fakeApp) History() imagesearch.HistoryStore { return f.history }
func (f *fakeApp) Serve(context.Context) error { return nil }

func newFakeApp(t *testing.T, result imagesearch.LocateResult, missing ...string) *fakeApp {
	t.Helper()
	miss := map[string]bool{}
	for _, m := range missing {
		miss[m] = true
	}
	blobs := memory.NewBlobStore()
	history := memory.NewHistoryStore()
	clk := clock.Fixed{T: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)}
	sv, err := saver.New(blobs, saver.DefaultQuality, clk)
	require.NoError(t, err)
	p, err := pipeline.New(pipeline.Deps{
		Locator: stubLocator{result: result},
		Fetcher: stubFetcher{missing: miss},
		Pacer:   pipeline.NewRandomPacer(0, 0),
		Saver:   sv,
		History: history,
		Clock:   clk,
		IDs:     stubIDs{},
	})
	require.NoError(t, err)
	return &fakeApp{
		cfg:      config.Config{Display: config.DisplayConfig{Columns: 2}, Output: config.OutputConfig{JPEGQuality: 80}},
		pipeline: p,
		history:  history,
		blobs:    blobs,
	}
}

func runRoot(t *testing.T, a *fakeApp, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(func(context.Context, string) (App, error) { return a, nil })
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func twoResults() imagesearch.LocateResult {
	return imagesearch.LocateResult{
		TargetURL: "https://pixabay.com/images/search/sunset+beach/",
		URLs: imagesearch.ResultSet{
			"https://cdn.pixabay.com/1.jpg",
			"https://cdn.pixabay.com/2.jpg",
		},
	}
}

func TestSearchCommandShowsGridAndSaves(t *testing.T) {
	t.Parallel()

	a := newFakeApp(t, twoResults(), "https://cdn.pixabay.com/2.jpg")
	out, err := runRoot(t, a, "search", "sunset", "beach", "--save", "1,2")
	require.NoError(t, err)

	assert.Contains(t, out, `2 images for "sunset beach"`)
	assert.Contains(t, out, "[1] 4x3 png 100B")
	assert.Contains(t, out, "[2] failed (status 404)")
	assert.Contains(t, out, "2 found, 1 shown, 1 failed")
	assert.Contains(t, out, "saved [1] -> memory://sunset_beach_1.jpg")
	assert.Contains(t, out, "skip [2]: image was not fetched")
	assert.Equal(t, []string{"sunset_beach_1.jpg"}, a.blobs.Paths())
	assert.True(t, a.closed)
}

func TestSearchCommandNoImages(t *testing.T) {
	t.Parallel()

	a := newFakeApp(t, imagesearch.LocateResult{TargetURL: "https://pixabay.com/images/search/zzz/"})
	out, err := runRoot(t, a, "search", "zzz", "--save-all")
	require.NoError(t, err)
	assert.Contains(t, out, imagesearch.NoImagesMessage)
	assert.Empty(t, a.blobs.Paths())
}

func TestSearchCommandSessionFailure(t *testing.T) {
	t.Parallel()

	a := newFakeApp(t, imagesearch.LocateResult{
		Err: &imagesearch.SessionError{Op: "launch browser", Err: errors.New("chrome not found")},
	})
	out, err := runRoot(t, a, "search", "cats")
	require.Error(t, err)
	var sessionErr *imagesearch.SessionError
	assert.ErrorAs(t, err, &sessionErr)
	assert.Contains(t, out, `Search for "cats" failed.`)
}

func TestSearchCommandContactSheet(t *testing.T) {
	t.Parallel()

	a := newFakeApp(t, twoResults())
	path := filepath.Join(t.TempDir(), "sheet.jpg")
	out, err := runRoot(t, a, "search", "cats", "--contact-sheet", path, "--thumb-size", "32")
	require.NoError(t, err)
	assert.Contains(t, out, "contact sheet -> "+path)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, outputFileMode, info.Mode().Perm())
}

func TestSearchCommandWritesScreenshot(t *testing.T) {
	t.Parallel()

	result := twoResults()
	result.Screenshot = []byte("\x89PNG fake")
	a := newFakeApp(t, result)
	path := filepath.Join(t.TempDir(), "page.png")
	a.cfg.Browser.ScreenshotPath = path

	out, err := runRoot(t, a, "search", "cats")
	require.NoError(t, err)
	assert.Contains(t, out, "screenshot -> "+path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, result.Screenshot, data)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, outputFileMode, info.Mode().Perm())
}

func TestSearchCommandRejectsBadPositions(t *testing.T) {
	t.Parallel()

	a := newFakeApp(t, twoResults())
	_, err := runRoot(t, a, "search", "cats", "--save", "one")
	require.ErrorContains(t, err, "--save positions must be positive integers")
}

func TestHistoryCommand(t *testing.T) {
	t.Parallel()

	a := newFakeApp(t, twoResults())
	_, err := runRoot(t, a, "search", "cats")
	require.NoError(t, err)

	out, err := runRoot(t, a, "history", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "QUERY")
	assert.Contains(t, out, "search-1")
	assert.Contains(t, out, "cats")
}

func TestParsePositions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    []int
		wantErr bool
	}{
		{raw: "", want: nil},
		{raw: "3,1, 3 ,2", want: []int{1, 2, 3}},
		{raw: "1,,4", want: []int{1, 4}},
		{raw: "0", wantErr: true},
		{raw: "-2", wantErr: true},
		{raw: "x", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parsePositions(tt.raw)
		if tt.wantErr {
			assert.Error(t, err, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}
