package httpimage

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/imgscout/internal/imagesearch"
)

func samplePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newImageServer(t *testing.T) *httptest.Server {
	t.Helper()
	pngBytes := samplePNG(t, 4, 3)
	mux := http.NewServeMux()
	mux.HandleFunc("/ok.png", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Referer") != "https://pixabay.com/" || r.UserAgent() != "test-agent" {
			http.Error(w, "hotlink", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	})
	mux.HandleFunc("/missing.jpg", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/garbage.jpg", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("<html>not an image at all</html>"))
	})
	mux.HandleFunc("/brotli.png", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		bw := brotli.NewWriter(w)
		_, _ = bw.Write(pngBytes)
		_ = bw.Close()
	})
	mux.HandleFunc("/gzip.png", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gw := gzip.NewWriter(w)
		_, _ = gw.Write(pngBytes)
		_ = gw.Close()
	})
	mux.HandleFunc("/big.png", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte{0x89}, 4096))
	})
	mux.HandleFunc("/slow.png", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestFetcher(limiter Waiter) *Fetcher {
	return New(Config{
		UserAgent: "test-agent",
		Referer:   "https://pixabay.com/",
		Timeout:   time.Second,
		MaxBytes:  1024,
	}, nil, limiter, nil)
}

func TestFetchDecodesPNG(t *testing.T) {
	t.Parallel()

	srv := newImageServer(t)
	img, err := newTestFetcher(nil).Fetch(context.Background(), srv.URL+"/ok.png")
	require.NoError(t, err)
	assert.Equal(t, "png", img.Format)
	assert.Equal(t, "image/png", img.ContentType)
	assert.Equal(t, 4, img.Width())
	assert.Equal(t, 3, img.Height())
	assert.Equal(t, srv.URL+"/ok.png", img.URL)
	assert.Positive(t, img.Bytes)
}

func TestFetchReportsStatusFailure(t *testing.T) {
	t.Parallel()

	srv := newImageServer(t)
	_, err := newTestFetcher(nil).Fetch(context.Background(), srv.URL+"/missing.jpg")
	var fe *imagesearch.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, imagesearch.FailureStatus, fe.Kind)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
	assert.Equal(t, srv.URL+"/missing.jpg", fe.URL)
}

func TestFetchReportsDecodeFailure(t *testing.T) {
	t.Parallel()

	srv := newImageServer(t)
	_, err := newTestFetcher(nil).Fetch(context.Background(), srv.URL+"/garbage.jpg")
	var fe *imagesearch.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, imagesearch.FailureDecode, fe.Kind)
	assert.ErrorIs(t, err, errUnknownFormat)
}

func TestFetchDecompressesBodies(t *testing.T) {
	t.Parallel()

	srv := newImageServer(t)
	f := newTestFetcher(nil)
	for _, path := range []string{"/brotli.png", "/gzip.png"} {
		img, err := f.Fetch(context.Background(), srv.URL+path)
		require.NoError(t, err, path)
		assert.Equal(t, "png", img.Format, path)
	}
}

func TestFetchRejectsOversizeBody(t *testing.T) {
	t.Parallel()

	srv := newImageServer(t)
	_, err := newTestFetcher(nil).Fetch(context.Background(), srv.URL+"/big.png")
	var fe *imagesearch.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, imagesearch.FailureTooLarge, fe.Kind)
}

func TestFetchTimesOut(t *testing.T) {
	t.Parallel()

	srv := newImageServer(t)
	f := New(Config{UserAgent: "test-agent", Timeout: 50 * time.Millisecond}, nil, nil, nil)
	_, err := f.Fetch(context.Background(), srv.URL+"/slow.png")
	var fe *imagesearch.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, imagesearch.FailureTransport, fe.Kind)
}

func TestFetchTransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/gone.png"
	srv.Close()

	_, err := newTestFetcher(nil).Fetch(context.Background(), url)
	var fe *imagesearch.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, imagesearch.FailureTransport, fe.Kind)
	assert.Zero(t, fe.StatusCode)
}

type countingWaiter struct {
	calls atomic.Int32
	err   error
}

func (w *countingWaiter) Wait(context.Context, string) error {
	w.calls.Add(1)
	return w.err
}

func TestFetchConsultsLimiter(t *testing.T) {
	t.Parallel()

	srv := newImageServer(t)
	waiter := &countingWaiter{}
	_, err := newTestFetcher(waiter).Fetch(context.Background(), srv.URL+"/ok.png")
	require.NoError(t, err)
	assert.Equal(t, int32(1), waiter.calls.Load())

	blocked := &countingWaiter{err: errors.New("rate limit wait: context canceled")}
	_, err = newTestFetcher(blocked).Fetch(context.Background(), srv.URL+"/ok.png")
	require.Error(t, err)
}

func TestDetectFormat(t *testing.T) {
	t.Parallel()

	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, image.NewGray(image.Rect(0, 0, 2, 2)), nil))
	var gifBuf bytes.Buffer
	require.NoError(t, gif.Encode(&gifBuf, image.NewPaletted(image.Rect(0, 0, 2, 2), color.Palette{color.Black, color.White}), nil))

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", jpg.Bytes(), "jpeg"},
		{"png", samplePNG(t, 1, 1), "png"},
		{"gif", gifBuf.Bytes(), "gif"},
		{"webp header", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "webp"},
	}
	for _, tt := range tests {
		got, err := detectFormat(tt.data)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}

	_, err := detectFormat([]byte("hi"))
	require.ErrorIs(t, err, errUnknownFormat)

	for _, tt := range tests[:3] {
		img, format, err := decodeImage(tt.data)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, format)
		assert.NotNil(t, img)
	}
}

func TestDecompressReaderRejectsUnknownEncoding(t *testing.T) {
	t.Parallel()

	_, _, err := decompressReader(bytes.NewReader(nil), "compress")
	require.Error(t, err)
}
