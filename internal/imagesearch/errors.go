package imagesearch

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyQuery is returned when the query is blank after trimming.
	ErrEmptyQuery = errors.New("query must not be empty")
	// ErrNoImage is returned when saving an outcome that has no decoded image.
	ErrNoImage = errors.New("outcome has no image")
	// ErrSearchNotFound is returned for unknown or expired search IDs.
	ErrSearchNotFound = errors.New("search not found")
	// ErrIndexOutOfRange is returned for positions outside the ResultSet.
	ErrIndexOutOfRange = errors.New("image index out of range")
)

// SessionError is a session-fatal failure: the browser could not be started or
// the results page could not be loaded.
type SessionError struct {
	Op  string
	URL string
	Err error
}

func (e *SessionError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// FetchFailure classifies a FetchError.
type FetchFailure string

const (
	FailureTransport FetchFailure = "transport"
	FailureStatus    FetchFailure = "status"
	FailureTooLarge  FetchFailure = "too_large"
	FailureDecode    FetchFailure = "decode"
)

// FetchError is a recoverable failure scoped to a single image URL.
type FetchError struct {
	URL        string
	Kind       FetchFailure
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == FailureStatus {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// AsFetchError wraps err as a FetchError unless it already is one.
func AsFetchError(url string, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return &FetchError{URL: url, Kind: FailureTransport, Err: err}
}

// Guidance shown when a search finds no images.
const (
	NoImagesMessage = "No images found. Try a different search term."
	NoImagesHint    = "The site may be blocking automated requests. Consider using its official API, adjusting request headers, or trying another site."
)
