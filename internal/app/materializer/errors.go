package materializer

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/osa030/tonaly/internal/domain/playlist"
	"github.com/osa030/tonaly/internal/domain/track"
)

var (
	ErrNoMatches        = errors.New("no track could be found in the catalog")
	ErrPlaylistCreation = errors.New("failed to create playlist")
	ErrTrackAttachment  = errors.New("failed to add tracks to playlist")
)

// NoMatchesError is returned when not a single proposed track resolved.
// Nothing was created on the catalog side.
type NoMatchesError struct {
	NotFound []track.Track
}

func (e *NoMatchesError) Error() string {
	return fmt.Sprintf("%v (%d searched)", ErrNoMatches, len(e.NotFound))
}

func (e *NoMatchesError) Is(target error) bool {
	return target == ErrNoMatches
}

// PlaylistCreationError is returned when the catalog rejected the playlist creation.
type PlaylistCreationError struct {
	Cause   error
	Details any // upstream error body, if any
}

func (e *PlaylistCreationError) Error() string {
	return fmt.Sprintf("%v: %v", ErrPlaylistCreation, e.Cause)
}

func (e *PlaylistCreationError) Unwrap() error { return e.Cause }

func (e *PlaylistCreationError) Is(target error) bool {
	return target == ErrPlaylistCreation
}

// TrackAttachmentError is returned when tracks could not be added to a playlist that was already created.
// The playlist is left in place, possibly empty or partial.
type TrackAttachmentError struct {
	Playlist playlist.Created
	Cause    error
	Details  any // upstream error body, if any
}

func (e *TrackAttachmentError) Error() string {
	return fmt.Sprintf("%v %s: %v", ErrTrackAttachment, e.Playlist.ID, e.Cause)
}

func (e *TrackAttachmentError) Unwrap() error { return e.Cause }

func (e *TrackAttachmentError) Is(target error) bool {
	return target == ErrTrackAttachment
}

// payloader is implemented by errors that carry the upstream service's error body.
type payloader interface {
	Payload() any
}

// payloadOf returns the upstream error body found in err's chain, or nil.
func payloadOf(err error) any {
	var p payloader
	if errors.As(err, &p) {
		return p.Payload()
	}
	return nil
}
