package rest

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tonaly/internal/app/materializer"
	"github.com/osa030/tonaly/internal/domain/playlist"
	"github.com/osa030/tonaly/internal/domain/track"
)

type createPlaylistRequest struct {
	PlaylistData *playlist.Proposal `json:"playlistData" validate:"required"`
	AccessToken  string             `json:"accessToken" validate:"required"`
	UserID       string             `json:"userId" validate:"required"`
}

type playlistSummary struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	URL            string `json:"url"`
	TracksAdded    int    `json:"tracksAdded"`
	TracksNotFound int    `json:"tracksNotFound"`
}

type createPlaylistResponse struct {
	Success        bool            `json:"success"`
	Playlist       playlistSummary `json:"playlist"`
	NotFoundTracks []track.Track   `json:"notFoundTracks"`
}

type noMatchesResponse struct {
	Error          string        `json:"error"`
	NotFoundTracks []track.Track `json:"notFoundTracks"`
}

type createdPlaylistRef struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type attachmentDetails struct {
	Upstream any                `json:"upstream,omitempty"`
	Playlist createdPlaylistRef `json:"playlist"`
}

// handleCreatePlaylist materializes a proposal on the caller's account.
func (s *Server) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req createPlaylistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		zlog.Info().Msgf("rejected create playlist request: reason=malformed error=%v", err)
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		zlog.Info().Msgf("rejected create playlist request: reason=invalid error=%v", err)
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	// Once started, a materialization runs to completion even if the client goes away.
	ctx := context.WithoutCancel(r.Context())

	result, err := s.materializer.Materialize(ctx, *req.PlaylistData, req.AccessToken, req.UserID)
	if err != nil {
		writeMaterializeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, createPlaylistResponse{
		Success: true,
		Playlist: playlistSummary{
			ID:             result.PlaylistID,
			Name:           result.PlaylistName,
			URL:            result.ExternalURL,
			TracksAdded:    result.ResolvedCount,
			TracksNotFound: result.UnresolvedCount,
		},
		NotFoundTracks: nonNil(result.Unresolved),
	})
}

func writeMaterializeError(w http.ResponseWriter, err error) {
	var (
		noMatches  *materializer.NoMatchesError
		creation   *materializer.PlaylistCreationError
		attachment *materializer.TrackAttachmentError
	)

	switch {
	case errors.As(err, &noMatches):
		writeJSON(w, http.StatusNotFound, noMatchesResponse{
			Error:          "No tracks found on Spotify",
			NotFoundTracks: nonNil(noMatches.NotFound),
		})
	case errors.As(err, &creation):
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "Failed to create playlist",
			Details: creation.Details,
		})
	case errors.As(err, &attachment):
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error: "Failed to add tracks to playlist",
			Details: attachmentDetails{
				Upstream: attachment.Details,
				Playlist: createdPlaylistRef{ID: attachment.Playlist.ID, URL: attachment.Playlist.URL},
			},
		})
	default:
		zlog.Error().Msgf("unexpected materialize error: error=%v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create playlist")
	}
}

func nonNil(tracks []track.Track) []track.Track {
	if tracks == nil {
		return []track.Track{}
	}
	return tracks
}
