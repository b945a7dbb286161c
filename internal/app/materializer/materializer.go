// Package materializer turns a playlist proposal into a real playlist on the catalog service.
package materializer

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/osa030/tonaly/internal/domain/playlist"
	"github.com/osa030/tonaly/internal/domain/track"
)

// TrackResolver resolves one proposed track. A miss is a normal outcome, not an error.
type TrackResolver interface {
	Resolve(ctx context.Context, t track.Track, accessToken string) track.Match
}

// PlaylistWriter performs the mutating catalog calls.
type PlaylistWriter interface {
	CreatePlaylist(ctx context.Context, accessToken, userID, name, description string, public bool) (*playlist.Created, error)
	AddTracksToPlaylist(ctx context.Context, accessToken, playlistID string, trackURIs []string) error
}

// Config represents materializer configuration.
type Config struct {
	DescriptionPrefix string
	Public            bool
	// SearchRatePerSec paces catalog searches within one call. Zero disables pacing.
	SearchRatePerSec float64
}

// Materializer resolves, creates and populates playlists.
// It keeps no state between calls; concurrent calls are independent.
type Materializer struct {
	resolver TrackResolver
	writer   PlaylistWriter
	config   Config
	now      func() time.Time
}

// New creates a new Materializer.
func New(resolver TrackResolver, writer PlaylistWriter, cfg Config) *Materializer {
	return &Materializer{
		resolver: resolver,
		writer:   writer,
		config:   cfg,
		now:      time.Now,
	}
}

// Materialize creates p on userID's account.
//
// Tracks are resolved sequentially in input order. If none resolves, *NoMatchesError is returned and nothing
// is created. Otherwise the playlist is created and all resolved tracks are attached in resolution order.
// A failed creation returns *PlaylistCreationError; a failed attachment returns *TrackAttachmentError and
// leaves the created playlist in place. Calling Materialize twice creates two playlists.
func (m *Materializer) Materialize(ctx context.Context, p playlist.Proposal, accessToken, userID string) (*playlist.Result, error) {
	zlog.Info().Msgf("materializing playlist: name=%q tracks=%d user=%s", p.Name, len(p.Tracks), userID)
	zlog.Debug().Msgf("proposal:\n%s", p.Table())

	uris, notFound, err := m.resolveAll(ctx, p.Tracks, accessToken)
	if err != nil {
		return nil, err
	}

	zlog.Info().Msgf("resolution finished: found=%d total=%d", len(uris), len(p.Tracks))

	if len(uris) == 0 {
		return nil, &NoMatchesError{NotFound: notFound}
	}

	created, err := m.writer.CreatePlaylist(ctx, accessToken, userID, p.Name, m.description(), m.config.Public)
	if err != nil {
		zlog.Error().Msgf("failed to create playlist: name=%q error=%v", p.Name, err)
		return nil, &PlaylistCreationError{Cause: err, Details: payloadOf(err)}
	}
	zlog.Info().Msgf("playlist created: id=%s name=%q", created.ID, created.Name)

	if err := m.writer.AddTracksToPlaylist(ctx, accessToken, created.ID, uris); err != nil {
		zlog.Error().Msgf("failed to add tracks, playlist left in place: id=%s url=%s error=%v", created.ID, created.URL, err)
		return nil, &TrackAttachmentError{Playlist: *created, Cause: err, Details: payloadOf(err)}
	}
	zlog.Info().Msgf("tracks added: id=%s count=%d", created.ID, len(uris))

	return &playlist.Result{
		PlaylistID:      created.ID,
		PlaylistName:    created.Name,
		ExternalURL:     created.URL,
		ResolvedCount:   len(uris),
		UnresolvedCount: len(notFound),
		Unresolved:      notFound,
	}, nil
}

// resolveAll resolves tracks one after another and partitions them, preserving relative order in each part.
func (m *Materializer) resolveAll(ctx context.Context, tracks []track.Track, accessToken string) (uris []string, notFound []track.Track, err error) {
	var limiter *rate.Limiter
	if m.config.SearchRatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(m.config.SearchRatePerSec), 1)
	}

	uris = make([]string, 0, len(tracks))
	notFound = make([]track.Track, 0)

	for _, t := range tracks {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, nil, errors.Wrap(err, "search pacing interrupted")
			}
		}

		match := m.resolver.Resolve(ctx, t, accessToken)
		if match.Found {
			uris = append(uris, match.URI)
		} else {
			notFound = append(notFound, t)
		}
	}

	return uris, notFound, nil
}

func (m *Materializer) description() string {
	return fmt.Sprintf("%s - %s", m.config.DescriptionPrefix, m.now().Format("2006-01-02"))
}
