// Package suggest answers free-text lookups against tag names and custom
// field names.
package suggest

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultLimit is the number of matches taken from each source.
const DefaultLimit = 5

var (
	// ErrQueryRequired is returned for a missing or blank query.
	ErrQueryRequired = eris.New("suggest: query is required")
	// ErrNoMatches is returned when neither source matches.
	ErrNoMatches = eris.New("suggest: no matching data found")
)

// Searcher finds names containing a query, case-insensitively. The query is
// matched literally.
type Searcher interface {
	SearchTagNames(ctx context.Context, query string, limit int) ([]string, error)
	SearchCustomFieldNames(ctx context.Context, query string, limit int) ([]string, error)
}

// Service merges tag and custom field matches.
type Service struct {
	search Searcher
	limit  int
}

// New creates a Service. A non-positive limit uses DefaultLimit.
func New(s Searcher, limit int) *Service {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Service{search: s, limit: limit}
}

// Suggest returns up to limit tag names followed by up to limit custom
// field names containing query.
func (s *Service) Suggest(ctx context.Context, query string) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrQueryRequired
	}

	var tags, fields []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tags, err = s.search.SearchTagNames(gctx, query, s.limit)
		return eris.Wrap(err, "suggest: search tags")
	})
	g.Go(func() error {
		var err error
		fields, err = s.search.SearchCustomFieldNames(gctx, query, s.limit)
		return eris.Wrap(err, "suggest: search custom fields")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(tags)+len(fields))
	out = append(out, truncate(tags, s.limit)...)
	out = append(out, truncate(fields, s.limit)...)
	if len(out) == 0 {
		return nil, ErrNoMatches
	}

	zap.L().Debug("suggest: matched",
		zap.String("query", query),
		zap.Int("tags", len(tags)),
		zap.Int("fields", len(fields)),
	)
	return out, nil
}

func truncate(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
