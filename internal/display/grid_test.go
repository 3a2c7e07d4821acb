package display

import (
	"bytes"
	"image"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/imgscout/internal/imagesearch"
)

func okOutcome(index, w, h int) imagesearch.Outcome {
	return imagesearch.Outcome{
		Index: index,
		URL:   "https://cdn.pixabay.com/x.jpg",
		Image: &imagesearch.FetchedImage{
			Image:  image.NewRGBA(image.Rect(0, 0, w, h)),
			Format: "jpeg",
			Bytes:  2048,
		},
	}
}

func failedOutcome(index int) imagesearch.Outcome {
	return imagesearch.Outcome{
		Index:   index,
		Failure: &imagesearch.FetchError{Kind: imagesearch.FailureStatus, StatusCode: 404},
	}
}

func TestCell(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "[1] 640x427 jpeg 2.0KB", Cell(okOutcome(0, 640, 427)))
	assert.Equal(t, "[3] failed (status 404)", Cell(failedOutcome(2)))
	assert.Equal(t, "[1] failed (decode)", Cell(imagesearch.Outcome{Failure: &imagesearch.FetchError{Kind: imagesearch.FailureDecode}}))
}

func TestGridWrapsRows(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	g := NewGrid(&buf, 2)
	require.NoError(t, g.Add(okOutcome(0, 10, 10)))
	assert.Empty(t, buf.String(), "row is held until full")
	require.NoError(t, g.Add(failedOutcome(1)))
	require.NoError(t, g.Add(okOutcome(2, 5, 8)))
	require.NoError(t, g.Flush())

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[1] 10x10")
	assert.Contains(t, lines[0], "[2] failed (status 404)")
	assert.Contains(t, lines[1], "[3] 5x8")
}

func TestGridDefaultsColumns(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	g := NewGrid(&buf, 0)
	for i := range 3 {
		require.NoError(t, g.Add(okOutcome(i, 1, 1)))
	}
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	require.NoError(t, g.Flush())
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestSummary(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Summary(&buf, imagesearch.Summary{NoImages: true}))
	assert.Contains(t, buf.String(), imagesearch.NoImagesMessage)
	assert.Contains(t, buf.String(), "official API")

	buf.Reset()
	require.NoError(t, Summary(&buf, imagesearch.Summary{Found: 3, Fetched: 2, Failed: 1}))
	assert.Equal(t, "3 found, 2 shown, 1 failed\n", buf.String())
}

func TestHumanBytes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "512B", humanBytes(512))
	assert.Equal(t, "1.5KB", humanBytes(1536))
	assert.Equal(t, "2.0MB", humanBytes(2<<20))
}
