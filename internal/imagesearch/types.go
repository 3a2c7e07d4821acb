package imagesearch

import (
	"image"
	"time"
)

// MaxResults is the hard upper bound on the size of a ResultSet.
const MaxResults = 20

// Query is the free-text search phrase typed by the user.
type Query string

// ResultSet is the ordered, deduplicated list of accepted image URLs for one search.
type ResultSet []string

// Contains reports whether url is already part of the set.
func (r ResultSet) Contains(url string) bool {
	for _, existing := range r {
		if existing == url {
			return true
		}
	}
	return false
}

// StrategyAttempt records what one locator strategy produced.
type StrategyAttempt struct {
	Strategy string `json:"strategy"`
	Matched  int    `json:"matched"`
	Accepted int    `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// LocateResult is the soft-failing outcome of a Locate call. Err is set only for
// session-fatal problems (browser launch, navigation); URLs is then empty.
type LocateResult struct {
	TargetURL  string
	Title      string
	URLs       ResultSet
	Attempts   []StrategyAttempt
	Screenshot []byte
	Err        error
}

// Search is a located ResultSet together with its identity and diagnostics.
type Search struct {
	ID         string            `json:"id"`
	Query      Query             `json:"query"`
	TargetURL  string            `json:"target_url"`
	Title      string            `json:"title,omitempty"`
	URLs       ResultSet         `json:"urls"`
	Attempts   []StrategyAttempt `json:"attempts"`
	CreatedAt  time.Time         `json:"created_at"`
	Screenshot []byte            `json:"-"`
	Err        error             `json:"-"`
}

// Empty reports whether the search found no images.
func (s Search) Empty() bool {
	return len(s.URLs) == 0
}

// FetchedImage is one decoded image tied to the URL it was downloaded from.
type FetchedImage struct {
	URL         string
	Image       image.Image
	Format      string
	ContentType string
	Bytes       int
	Duration    time.Duration
}

// Width returns the decoded image width in pixels.
func (f FetchedImage) Width() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height returns the decoded image height in pixels.
func (f FetchedImage) Height() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}

// Outcome is the per-URL result of the display loop: exactly one of Image or
// Failure is set.
type Outcome struct {
	Index   int
	URL     string
	Image   *FetchedImage
	Failure *FetchError
}

// OK reports whether the outcome carries a decoded image.
func (o Outcome) OK() bool {
	return o.Image != nil && o.Failure == nil
}

// Position returns the 1-based position used for file names and UI labels.
func (o Outcome) Position() int {
	return o.Index + 1
}

// Summary totals a display run.
type Summary struct {
	Found    int
	Fetched  int
	Failed   int
	NoImages bool
}

// SavedFile describes a persisted JPEG copy of a fetched image.
type SavedFile struct {
	Filename  string    `json:"filename"`
	URI       string    `json:"uri"`
	SourceURL string    `json:"source_url"`
	Position  int       `json:"position"`
	Bytes     int       `json:"bytes"`
	SHA256    string    `json:"sha256"`
	SavedAt   time.Time `json:"saved_at"`
}

// SearchRecord is the history row written for every search.
type SearchRecord struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	TargetURL string    `json:"target_url"`
	URLs      []string  `json:"urls"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveRecord is the history row written for every saved image.
type SaveRecord struct {
	SearchID  string    `json:"search_id"`
	Position  int       `json:"position"`
	SourceURL string    `json:"source_url"`
	URI       string    `json:"uri"`
	SavedAt   time.Time `json:"saved_at"`
}
