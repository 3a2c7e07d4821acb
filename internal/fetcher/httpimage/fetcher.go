// Package httpimage downloads images over HTTP and decodes them in memory.
package httpimage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/JakeFAU/imgscout/internal/imagesearch"
	"github.com/JakeFAU/imgscout/internal/metrics"
)

const acceptImages = "image/avif,image/webp,image/apng,image/*,*/*;q=0.8"

// Config controls request headers and limits.
type Config struct {
	UserAgent string
	Referer   string
	Timeout   time.Duration
	MaxBytes  int64
}

// Waiter delays a request to respect per-site politeness.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Fetcher implements imagesearch.Fetcher. It performs exactly one GET per call.
type Fetcher struct {
	cfg     Config
	client  *http.Client
	limiter Waiter
	logger  *zap.Logger
}

// New builds a Fetcher. A nil client gets a default one with a cookie jar;
// a nil limiter disables rate limiting.
func New(cfg Config, client *http.Client, limiter Waiter, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 20 << 20
	}
	if client == nil {
		client = newHTTPClient()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{cfg: cfg, client: client, limiter: limiter, logger: logger}
}

// Fetch downloads url and decodes it. Every failure is a *imagesearch.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, url string) (imagesearch.FetchedImage, error) {
	start := time.Now()
	img, err := f.fetch(ctx, url)
	duration := time.Since(start)

	result := "ok"
	if err != nil {
		var fe *imagesearch.FetchError
		if errors.As(err, &fe) {
			result = string(fe.Kind)
		}
		f.logger.Warn("image fetch failed", zap.String("url", url), zap.Error(err))
	} else {
		img.Duration = duration
		f.logger.Debug("image fetched",
			zap.String("url", url),
			zap.String("format", img.Format),
			zap.Int("bytes", img.Bytes),
			zap.Duration("duration", duration),
		)
	}
	metrics.ObserveFetch(url, result, duration)
	return img, err
}

func (f *Fetcher) fetch(ctx context.Context, url string) (imagesearch.FetchedImage, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, url); err != nil {
			return imagesearch.FetchedImage{}, &imagesearch.FetchError{URL: url, Kind: imagesearch.FailureTransport, Err: err}
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return imagesearch.FetchedImage{}, &imagesearch.FetchError{URL: url, Kind: imagesearch.FailureTransport, Err: err}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	if f.cfg.Referer != "" {
		req.Header.Set("Referer", f.cfg.Referer)
	}
	req.Header.Set("Accept", acceptImages)
	req.Header.Set("Accept-Encoding", "gzip, br")

	resp, err := f.client.Do(req)
	if err != nil {
		return imagesearch.FetchedImage{}, &imagesearch.FetchError{URL: url, Kind: imagesearch.FailureTransport, Err: err}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			f.logger.Debug("close response body", zap.String("url", url), zap.Error(cerr))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return imagesearch.FetchedImage{}, &imagesearch.FetchError{
			URL:        url,
			Kind:       imagesearch.FailureStatus,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	body, closeBody, err := decompressReader(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return imagesearch.FetchedImage{}, &imagesearch.FetchError{URL: url, Kind: imagesearch.FailureDecode, StatusCode: resp.StatusCode, Err: err}
	}
	defer closeBody() //nolint:errcheck // read-only stream

	data, err := io.ReadAll(io.LimitReader(body, f.cfg.MaxBytes+1))
	if err != nil {
		return imagesearch.FetchedImage{}, &imagesearch.FetchError{URL: url, Kind: imagesearch.FailureTransport, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(data)) > f.cfg.MaxBytes {
		return imagesearch.FetchedImage{}, &imagesearch.FetchError{
			URL:        url,
			Kind:       imagesearch.FailureTooLarge,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("body exceeds %d bytes", f.cfg.MaxBytes),
		}
	}

	img, format, err := decodeImage(data)
	if err != nil {
		return imagesearch.FetchedImage{}, &imagesearch.FetchError{URL: url, Kind: imagesearch.FailureDecode, StatusCode: resp.StatusCode, Err: err}
	}
	return imagesearch.FetchedImage{
		URL:         url,
		Image:       img,
		Format:      format,
		ContentType: resp.Header.Get("Content-Type"),
		Bytes:       len(data),
	}, nil
}

func newHTTPClient() *http.Client {
	client := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
		},
	}
	if jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List}); err == nil {
		client.Jar = jar
	}
	return client
}
