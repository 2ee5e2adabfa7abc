package model

import (
	"time"

	"github.com/google/uuid"
)

// URL represents a shortened URL record.
type URL struct {
	ID           uuid.UUID  `json:"id"`
	ShortID      string     `json:"short_id"`
	LongURL      string     `json:"long_url"`
	ClickCount   int64      `json:"click_count"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ReferrerCount is one referrer tally for a short URL. FirstSeen orders
// referrers that share the same hit count in the stats response.
type ReferrerCount struct {
	Referrer  string    `json:"referrer"`
	Hits      int64     `json:"hits"`
	FirstSeen time.Time `json:"first_seen"`
}

// ShortenRequest represents the request body for creating a short URL
type ShortenRequest struct {
	LongURL string `json:"longUrl" binding:"required"`
}

// ShortenResponse represents the response for a created (or reused) short URL
type ShortenResponse struct {
	ShortURL string `json:"shortUrl"`
	LongURL  string `json:"longUrl"`
}

// StatsResponse represents the analytics for a short URL
type StatsResponse struct {
	ClickCount   int64      `json:"clickCount"`
	LastAccessed *time.Time `json:"lastAccessed"`
	TopReferrers []string   `json:"topReferrers"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
