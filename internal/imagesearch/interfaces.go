package imagesearch

import (
	"context"
	"io"
	"time"
)

// Page is an open browser page the locator can inspect.
type Page interface {
	// Navigate loads url into the page.
	Navigate(ctx context.Context, url string) error
	// QueryAttributes returns attr of every element matching selector, in document order.
	QueryAttributes(ctx context.Context, selector, attr string) ([]string, error)
	// Title returns the current document title.
	Title(ctx context.Context) (string, error)
	// Screenshot captures the viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)
}

// Session is a Page owned by exactly one Locate call.
type Session interface {
	Page
	Close() error
}

// SessionProvider opens browser sessions.
type SessionProvider interface {
	Open(ctx context.Context) (Session, error)
}

// Locator turns a query into a ResultSet.
type Locator interface {
	Locate(ctx context.Context, query Query) LocateResult
}

// Fetcher downloads and decodes one image.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchedImage, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// HistoryStore persists searches and saves.
type HistoryStore interface {
	RecordSearch(ctx context.Context, rec SearchRecord) error
	RecordSave(ctx context.Context, rec SaveRecord) error
	Recent(ctx context.Context, limit int) ([]SearchRecord, error)
}

// Publisher pushes events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Pacer waits between consecutive fetches.
type Pacer interface {
	Pause(ctx context.Context) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces search IDs.
type IDGenerator interface {
	NewID() (string, error)
}
