package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/linklet/linklet/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/linklet/linklet/internal/repository")

var (
	ErrNotFound        = errors.New("url not found")
	ErrShortIDConflict = errors.New("short ID already exists")
	ErrLongURLConflict = errors.New("long URL already exists")
)

const pgUniqueViolation = "23505"

// URLRepository handles database operations for URL records.
type URLRepository struct {
	db *pgxpool.Pool
}

// NewURLRepository creates a new URL repository
func NewURLRepository(db *pgxpool.Pool) *URLRepository {
	return &URLRepository{db: db}
}

// Create inserts a new URL record. Unique-constraint violations are mapped
// to ErrShortIDConflict or ErrLongURLConflict by constraint so the caller
// can tell an allocator collision from a concurrent shorten of the same
// long URL.
func (r *URLRepository) Create(ctx context.Context, url *model.URL) error {
	ctx, span := tracer.Start(ctx, "db.insert",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "INSERT"),
			attribute.String("db.sql.table", "urls"),
			attribute.String("short_id", url.ShortID),
		),
	)
	defer span.End()

	query := `
		INSERT INTO urls (id, short_id, long_url)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query, url.ID, url.ShortID, url.LongURL).Scan(&url.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			switch pgErr.ConstraintName {
			case "urls_long_url_key":
				return ErrLongURLConflict
			default:
				return ErrShortIDConflict
			}
		}
		span.RecordError(err)
		return err
	}

	return nil
}

// GetByShortID retrieves a URL record by its short identifier.
func (r *URLRepository) GetByShortID(ctx context.Context, shortID string) (*model.URL, error) {
	ctx, span := tracer.Start(ctx, "db.select",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "SELECT"),
			attribute.String("db.sql.table", "urls"),
			attribute.String("short_id", shortID),
		),
	)
	defer span.End()

	query := `
		SELECT id, short_id, long_url, click_count, last_accessed, created_at
		FROM urls
		WHERE short_id = $1
	`
	var url model.URL
	err := r.db.QueryRow(ctx, query, shortID).Scan(
		&url.ID,
		&url.ShortID,
		&url.LongURL,
		&url.ClickCount,
		&url.LastAccessed,
		&url.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, err
	}
	return &url, nil
}

// GetByLongURL retrieves a URL record by exact long URL match. Used by the
// idempotent shorten path.
func (r *URLRepository) GetByLongURL(ctx context.Context, longURL string) (*model.URL, error) {
	ctx, span := tracer.Start(ctx, "db.select",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "SELECT"),
			attribute.String("db.sql.table", "urls"),
		),
	)
	defer span.End()

	query := `
		SELECT id, short_id, long_url, click_count, last_accessed, created_at
		FROM urls
		WHERE long_url = $1
	`
	var url model.URL
	err := r.db.QueryRow(ctx, query, longURL).Scan(
		&url.ID,
		&url.ShortID,
		&url.LongURL,
		&url.ClickCount,
		&url.LastAccessed,
		&url.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, err
	}
	return &url, nil
}

// ShortIDExists reports whether a short identifier is already stored.
// Used by the random allocator's collision check.
func (r *URLRepository) ShortIDExists(ctx context.Context, shortID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM urls WHERE short_id = $1)`, shortID,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// NextSeq atomically increments and returns the named counter. The counter
// row is created on first use, so the first value issued is 1.
func (r *URLRepository) NextSeq(ctx context.Context, name string) (int64, error) {
	ctx, span := tracer.Start(ctx, "db.update",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "UPSERT"),
			attribute.String("db.sql.table", "counters"),
			attribute.String("counter", name),
		),
	)
	defer span.End()

	query := `
		INSERT INTO counters AS c (name, seq)
		VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET seq = c.seq + 1
		RETURNING seq
	`
	var seq int64
	if err := r.db.QueryRow(ctx, query, name).Scan(&seq); err != nil {
		span.RecordError(err)
		return 0, err
	}
	return seq, nil
}

// RecordClick applies the full analytics update for one redirect in a
// single transaction: increments the click count, stamps last_accessed and
// upserts the referrer tally. The row update takes a row-level lock, so
// concurrent redirects of the same short ID serialize and no increment is
// lost. Returns the long URL to redirect to, or ErrNotFound with no side
// effects when the short ID is unknown.
func (r *URLRepository) RecordClick(ctx context.Context, shortID, referrer string) (string, error) {
	ctx, span := tracer.Start(ctx, "db.tx.record_click",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.sql.table", "urls"),
			attribute.String("short_id", shortID),
		),
	)
	defer span.End()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var longURL string
	err = tx.QueryRow(ctx, `
		UPDATE urls
		SET click_count = click_count + 1, last_accessed = now()
		WHERE short_id = $1
		RETURNING long_url
	`, shortID).Scan(&longURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		span.RecordError(err)
		return "", err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO url_referrers (short_id, referrer, hits)
		VALUES ($1, $2, 1)
		ON CONFLICT (short_id, referrer) DO UPDATE SET hits = url_referrers.hits + 1
	`, shortID, referrer)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("commit click update: %w", err)
	}
	return longURL, nil
}

// GetStats returns the record and its referrer tallies ordered by first
// appearance. Pure read, no side effects.
func (r *URLRepository) GetStats(ctx context.Context, shortID string) (*model.URL, []model.ReferrerCount, error) {
	url, err := r.GetByShortID(ctx, shortID)
	if err != nil {
		return nil, nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT referrer, hits, first_seen
		FROM url_referrers
		WHERE short_id = $1
		ORDER BY first_seen
	`, shortID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var referrers []model.ReferrerCount
	for rows.Next() {
		var rc model.ReferrerCount
		if err := rows.Scan(&rc.Referrer, &rc.Hits, &rc.FirstSeen); err != nil {
			return nil, nil, err
		}
		referrers = append(referrers, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	return url, referrers, nil
}
