package service

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/linklet/linklet/internal/events"
	"github.com/linklet/linklet/internal/model"
	"github.com/linklet/linklet/internal/repository"
	"github.com/linklet/linklet/internal/shortid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrInvalidURL          = errors.New("invalid URL format")
	ErrURLNotFound         = errors.New("URL not found")
	ErrAllocationExhausted = errors.New("short ID allocation exhausted")
)

// DirectReferrer is the sentinel tally key used when a redirect carries no
// Referer header.
const DirectReferrer = "direct"

// TopReferrerLimit caps the referrer list in stats responses.
const TopReferrerLimit = 5

// URLService handles business logic for shortening, redirecting and stats.
type URLService struct {
	repo       repository.URLRepositoryInterface
	alloc      shortid.Allocator
	publisher  events.ClickPublisher
	maxRetries int

	shortens     metric.Int64Counter
	redirects    metric.Int64Counter
	allocRetries metric.Int64Counter
}

// URLServiceInterface defines the contract consumed by the HTTP handlers.
type URLServiceInterface interface {
	Shorten(ctx context.Context, longURL string) (*model.URL, error)
	Resolve(ctx context.Context, shortID, referrer string) (string, error)
	Stats(ctx context.Context, shortID string) (*model.StatsResponse, error)
}

// NewURLService creates a new URL service. publisher may be a no-op;
// maxRetries bounds the create loop when the allocator collides with an
// existing identifier.
func NewURLService(repo repository.URLRepositoryInterface, alloc shortid.Allocator, publisher events.ClickPublisher, maxRetries int) *URLService {
	meter := otel.Meter("github.com/linklet/linklet/internal/service")
	shortens, _ := meter.Int64Counter("linklet_shortens_total",
		metric.WithDescription("URLs shortened, including idempotent reuse"))
	redirects, _ := meter.Int64Counter("linklet_redirects_total",
		metric.WithDescription("Successful short URL redirects"))
	allocRetries, _ := meter.Int64Counter("linklet_allocation_retries_total",
		metric.WithDescription("Short ID allocation retries after store conflicts"))

	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	return &URLService{
		repo:         repo,
		alloc:        alloc,
		publisher:    publisher,
		maxRetries:   maxRetries,
		shortens:     shortens,
		redirects:    redirects,
		allocRetries: allocRetries,
	}
}

// Shorten returns the record for longURL, creating it on first sight.
// Shortening the same URL twice yields the same short ID: an existing
// record is always reused, and a concurrent duplicate create falls back to
// the winner's record via the long-URL uniqueness constraint.
func (s *URLService) Shorten(ctx context.Context, longURL string) (*model.URL, error) {
	if !isAbsoluteHTTPURL(longURL) {
		return nil, ErrInvalidURL
	}

	existing, err := s.repo.GetByLongURL(ctx, longURL)
	if err == nil {
		s.shortens.Add(ctx, 1)
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		code, err := s.alloc.Allocate(ctx)
		if err != nil {
			if errors.Is(err, shortid.ErrExhausted) {
				return nil, ErrAllocationExhausted
			}
			return nil, err
		}

		rec := &model.URL{
			ID:      uuid.New(),
			ShortID: code,
			LongURL: longURL,
		}
		err = s.repo.Create(ctx, rec)
		if err == nil {
			s.shortens.Add(ctx, 1)
			return rec, nil
		}
		if errors.Is(err, repository.ErrLongURLConflict) {
			// A concurrent shorten of the same URL won the race.
			s.shortens.Add(ctx, 1)
			return s.repo.GetByLongURL(ctx, longURL)
		}
		if errors.Is(err, repository.ErrShortIDConflict) {
			s.allocRetries.Add(ctx, 1)
			continue
		}
		return nil, err
	}

	return nil, ErrAllocationExhausted
}

// Resolve maps a short ID to its long URL and records the click: count,
// last-access time and referrer tally are committed atomically before the
// long URL is returned. An unknown short ID leaves no trace.
func (s *URLService) Resolve(ctx context.Context, shortID, referrer string) (string, error) {
	if referrer == "" {
		referrer = DirectReferrer
	}

	longURL, err := s.repo.RecordClick(ctx, shortID, referrer)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrURLNotFound
		}
		return "", err
	}

	s.redirects.Add(ctx, 1)

	// Best effort: the click is already durable, the event stream is a
	// side channel and the publisher handles its own failures.
	_ = s.publisher.PublishClick(ctx, events.ClickEvent{
		ShortID:    shortID,
		Referrer:   referrer,
		OccurredAt: time.Now().UTC(),
	})

	return longURL, nil
}

// Stats returns click count, last access time and the top referrers for a
// short ID without touching any counters.
func (s *URLService) Stats(ctx context.Context, shortID string) (*model.StatsResponse, error) {
	rec, referrers, err := s.repo.GetStats(ctx, shortID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrURLNotFound
		}
		return nil, err
	}

	return &model.StatsResponse{
		ClickCount:   rec.ClickCount,
		LastAccessed: rec.LastAccessed,
		TopReferrers: rankReferrers(referrers, TopReferrerLimit),
	}, nil
}

// rankReferrers orders referrers by descending hit count, breaking ties by
// first appearance, and truncates to limit. The input must already be in
// first-seen order; the stable sort preserves it within equal counts.
func rankReferrers(referrers []model.ReferrerCount, limit int) []string {
	ranked := make([]model.ReferrerCount, len(referrers))
	copy(ranked, referrers)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Hits > ranked[j].Hits
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	top := make([]string, 0, len(ranked))
	for _, rc := range ranked {
		top = append(top, rc.Referrer)
	}
	return top
}

// isAbsoluteHTTPURL reports whether s parses as an absolute http or https
// URL. Anything else is rejected before any allocation or store write.
func isAbsoluteHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Ensure URLService implements URLServiceInterface at compile time
var _ URLServiceInterface = (*URLService)(nil)
