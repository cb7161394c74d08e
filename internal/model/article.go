package model

import (
	"time"

	"github.com/google/uuid"
)

type ExtractionStatus string

const (
	StatusPending    ExtractionStatus = "pending"
	StatusExtracting ExtractionStatus = "extracting"
	StatusCompleted  ExtractionStatus = "completed"
	StatusFailed     ExtractionStatus = "failed"
)

// Statuses lists every extraction status, for store index maintenance.
var Statuses = []ExtractionStatus{StatusPending, StatusExtracting, StatusCompleted, StatusFailed}

// Article represents a saved URL and whatever the extraction pipeline
// has managed to pull out of it so far.
type Article struct {
	ID     uuid.UUID `json:"id"`
	URL    string    `json:"url"`
	UserID string    `json:"user_id,omitempty"`

	Title       string     `json:"title"`
	Author      string     `json:"author,omitempty"`
	Content     string     `json:"content,omitempty"`
	Excerpt     string     `json:"excerpt,omitempty"`
	WordCount   int        `json:"word_count"`
	ReadingTime int        `json:"reading_time"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Favicon     string     `json:"favicon,omitempty"`
	// Image is the filename of the locally cached lead image, not a remote URL.
	Image string `json:"image,omitempty"`
	// OriginalHTML keeps the verbatim fetched page for re-processing and debugging.
	OriginalHTML string `json:"original_html,omitempty"`

	ExtractionStatus ExtractionStatus `json:"extraction_status"`
	ExtractionError  string           `json:"extraction_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is bumped on every status change. The reaper uses it to
	// spot articles stuck in "extracting".
	UpdatedAt time.Time `json:"updated_at"`
}

// NewArticle creates a new Article in the pending state.
func NewArticle(rawURL, userID string) Article {
	now := time.Now()
	return Article{
		ID:               uuid.New(),
		URL:              rawURL,
		UserID:           userID,
		ExtractionStatus: StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
