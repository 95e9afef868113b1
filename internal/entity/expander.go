package entity

import (
	"context"
	"strings"
	"sync"
	"time"
)

const (
	// maxExpansions caps how many entities may rewrite a single query.
	maxExpansions = 3
	// minTermLength keeps short noise terms ("a", "of") from matching.
	minTermLength = 3

	defaultCacheTTL = time.Hour
)

// Expander rewrites query terms to their canonical entity forms. The
// entity list is cached in memory and refreshed at most once per TTL,
// so the hot search path never waits on a table scan.
type Expander struct {
	store *Store
	ttl   time.Duration

	mu       sync.Mutex
	cached   []Entity
	loadedAt time.Time
}

// NewExpander creates an expander with the default one-hour cache TTL.
func NewExpander(store *Store) *Expander {
	return &Expander{store: store, ttl: defaultCacheTTL}
}

// Invalidate drops the cached entity list, forcing a reload on the next
// detection. Called after extraction and cleanup jobs change the table.
func (x *Expander) Invalidate() {
	x.mu.Lock()
	x.loadedAt = time.Time{}
	x.mu.Unlock()
}

func (x *Expander) entities(ctx context.Context) ([]Entity, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if !x.loadedAt.IsZero() && time.Since(x.loadedAt) < x.ttl {
		return x.cached, nil
	}

	entities, err := x.store.ListByFrequency(ctx, 0)
	if err != nil {
		return nil, err
	}
	x.cached = entities
	x.loadedAt = time.Now()
	return entities, nil
}

// Detect finds entities whose canonical form or a variant occurs in the
// query, case-insensitively. At most maxExpansions matches are returned,
// highest-frequency entities first.
func (x *Expander) Detect(ctx context.Context, query string) ([]Match, error) {
	entities, err := x.entities(ctx)
	if err != nil {
		return nil, err
	}

	lowerQuery := strings.ToLower(query)
	var matches []Match
	for _, e := range entities {
		if len(matches) >= maxExpansions {
			break
		}
		if term, ok := matchTerm(lowerQuery, e); ok {
			matches = append(matches, Match{Entity: e, Term: term})
		}
	}
	return matches, nil
}

// Apply rewrites each matched term in the query to the entity's
// canonical form. Terms that already are canonical pass through.
func Apply(query string, matches []Match) string {
	for _, m := range matches {
		if strings.EqualFold(m.Term, m.Entity.Canonical) {
			continue
		}
		query = replaceInsensitive(query, m.Term, m.Entity.Canonical)
	}
	return query
}

func matchTerm(lowerQuery string, e Entity) (string, bool) {
	terms := make([]string, 0, len(e.Variants)+1)
	terms = append(terms, e.Canonical)
	terms = append(terms, e.Variants...)

	for _, term := range terms {
		if len(term) < minTermLength {
			continue
		}
		if strings.Contains(lowerQuery, strings.ToLower(term)) {
			return term, true
		}
	}
	return "", false
}

// replaceInsensitive replaces every case-insensitive occurrence of term
// with replacement, preserving the rest of the string.
func replaceInsensitive(s, term, replacement string) string {
	lowerS := strings.ToLower(s)
	lowerTerm := strings.ToLower(term)

	var b strings.Builder
	for {
		i := strings.Index(lowerS, lowerTerm)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		b.WriteString(replacement)
		s = s[i+len(term):]
		lowerS = lowerS[i+len(lowerTerm):]
	}
}
