// Package services – VisitService
//
// VisitService turns raw request paths into canonical page keys and records
// visits. Tracking is best-effort: Record never returns an error, it reports
// one in TrackResult so the HTTP layer can log it and still serve the page.
package services

import (
	"context"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-chatboard/internal/domain"
	"github.com/tbourn/go-chatboard/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TrackResult is the outcome of a single tracked visit.
type TrackResult struct {
	Page       string
	NewVisitor bool
	Err        error
}

// VisitService records page visits and exposes the counters.
type VisitService struct {
	DB  *gorm.DB
	Now func() time.Time
}

// NormalizePageKey maps a request path to its counter key. The query and
// fragment are dropped, the path is lower-cased, repeated slashes collapse
// and a trailing slash is removed. Anything under /article/ or /articles/
// shares the single "/article" key.
func NormalizePageKey(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	raw = strings.ToLower(strings.TrimSpace(raw))

	var b strings.Builder
	b.Grow(len(raw) + 1)
	b.WriteByte('/')
	prevSlash := true
	for i := 0; i < len(raw); i++ {
		ch := raw[i]
		if ch == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteByte(ch)
	}
	key := b.String()
	if len(key) > 1 {
		key = strings.TrimSuffix(key, "/")
	}

	if strings.HasPrefix(key, "/article/") || strings.HasPrefix(key, "/articles/") {
		return "/article"
	}
	return key
}

// Record registers a visit of addr to the page behind rawPath.
func (s *VisitService) Record(ctx context.Context, rawPath, addr string) TrackResult {
	page := NormalizePageKey(rawPath)

	tr := otel.Tracer("services/VisitService")
	ctx, span := tr.Start(ctx, "Record",
		trace.WithAttributes(attribute.String("page", page)),
	)
	defer span.End()

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	fresh, err := repo.RecordVisit(ctx, s.DB, page, addr, now())
	if err != nil {
		span.RecordError(err)
		return TrackResult{Page: page, Err: err}
	}
	pageVisits.WithLabelValues(page, strconv.FormatBool(fresh)).Inc()
	return TrackResult{Page: page, NewVisitor: fresh}
}

// PageViews returns the counters of every tracked page.
func (s *VisitService) PageViews(ctx context.Context) ([]domain.PageView, error) {
	ctx, span := otel.Tracer("services/VisitService").Start(ctx, "PageViews")
	defer span.End()
	return repo.ListPageViews(ctx, s.DB)
}

// UniqueVisitors returns the number of distinct addresses per page.
func (s *VisitService) UniqueVisitors(ctx context.Context) ([]domain.PageVisitorCount, error) {
	ctx, span := otel.Tracer("services/VisitService").Start(ctx, "UniqueVisitors")
	defer span.End()
	return repo.ListUniqueVisitors(ctx, s.DB)
}
