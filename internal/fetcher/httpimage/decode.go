package httpimage

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"golang.org/x/image/webp"
)

var errUnknownFormat = errors.New("unknown image format")

// detectFormat reads the magic bytes and returns the image format name.
func detectFormat(data []byte) (string, error) {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "jpeg", nil
	case len(data) >= 4 && data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47:
		return "png", nil
	case len(data) >= 6 && (string(data[0:6]) == "GIF87a" || string(data[0:6]) == "GIF89a"):
		return "gif", nil
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return "webp", nil
	}
	return "", errUnknownFormat
}

// decodeImage decodes data into an image and reports its format.
func decodeImage(data []byte) (image.Image, string, error) {
	format, err := detectFormat(data)
	if err != nil {
		return nil, "", err
	}
	reader := bytes.NewReader(data)
	var img image.Image
	switch format {
	case "jpeg":
		img, err = jpeg.Decode(reader)
	case "png":
		img, err = png.Decode(reader)
	case "gif":
		img, err = gif.Decode(reader)
	case "webp":
		img, err = webp.Decode(reader)
	}
	if err != nil {
		return nil, format, fmt.Errorf("decode %s: %w", format, err)
	}
	return img, format, nil
}

// decompressReader wraps body according to the Content-Encoding header.
func decompressReader(body io.Reader, contentEncoding string) (io.Reader, func() error, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity":
		return body, noopClose, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(body)
		if err != nil {
			return nil, nil, fmt.Errorf("open gzip stream: %w", err)
		}
		return zr, zr.Close, nil
	case "br":
		return brotli.NewReader(body), noopClose, nil
	default:
		return nil, nil, fmt.Errorf("unsupported content encoding %q", contentEncoding)
	}
}

func noopClose() error { return nil }
