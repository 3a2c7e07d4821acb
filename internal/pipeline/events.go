package pipeline

import "time"

// Event names published by the pipeline.
const (
	EventSearchCompleted = "search.completed"
	EventImageSaved      = "image.saved"
)

// SearchCompleted is the payload of a search.completed event.
type SearchCompleted struct {
	SearchID  string    `json:"search_id"`
	Query     string    `json:"query"`
	TargetURL string    `json:"target_url"`
	Found     int       `json:"found"`
	Strategy  string    `json:"strategy,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ImageSaved is the payload of an image.saved event.
type ImageSaved struct {
	SearchID  string    `json:"search_id"`
	Position  int       `json:"position"`
	SourceURL string    `json:"source_url"`
	URI       string    `json:"uri"`
	Filename  string    `json:"filename"`
	SHA256    string    `json:"sha256"`
	SavedAt   time.Time `json:"saved_at"`
}
