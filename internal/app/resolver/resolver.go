// Package resolver maps proposed tracks onto catalog entries.
package resolver

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tonaly/internal/domain/track"
)

// Searcher is the catalog search capability the resolver depends on.
type Searcher interface {
	// SearchTrack returns the URI of the best match for query, or found=false when there is none.
	SearchTrack(ctx context.Context, accessToken, query string) (uri string, found bool, err error)
}

// Resolver resolves one track at a time against the catalog.
type Resolver struct {
	searcher Searcher
}

// New creates a new Resolver.
func New(searcher Searcher) *Resolver {
	return &Resolver{searcher: searcher}
}

// Resolve looks t up with a single search request authorized by accessToken.
// A failed lookup is reported as NotFound, never as an error.
func (r *Resolver) Resolve(ctx context.Context, t track.Track, accessToken string) track.Match {
	uri, found, err := r.searcher.SearchTrack(ctx, accessToken, t.Query())
	switch {
	case err != nil:
		zlog.Warn().Msgf("track lookup failed: outcome=error title=%q artist=%q error=%v", t.Title, t.Artist, err)
		return track.NotFound()
	case !found:
		zlog.Info().Msgf("track not found: outcome=not_found title=%q artist=%q", t.Title, t.Artist)
		return track.NotFound()
	default:
		zlog.Info().Msgf("track found: outcome=found title=%q artist=%q uri=%s", t.Title, t.Artist, uri)
		return track.Found(uri)
	}
}
