package assistant

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tonaly/internal/domain/playlist"
	"github.com/osa030/tonaly/internal/domain/track"
)

var (
	jsonFencePattern = regexp.MustCompile("(?s)```[ \t]*(?i:json)[ \t]*\r?\n(.*?)```")
	anyFencePattern  = regexp.MustCompile("(?s)```[ \t]*\r?\n(.*?)```")
)

// rawProposal accepts the key spellings models tend to produce.
type rawProposal struct {
	PlaylistName string        `mapstructure:"playlistName"`
	Name         string        `mapstructure:"name"`
	Tracks       []track.Track `mapstructure:"tracks"`
}

// ExtractProposal finds the playlist proposal embedded in a complete assistant message.
// JSON-tagged fences are tried first, then untagged ones. It reports false when no block decodes into a
// proposal with a name and at least one titled track; it never fails otherwise.
func ExtractProposal(text string) (playlist.Proposal, bool) {
	for _, pattern := range []*regexp.Regexp{jsonFencePattern, anyFencePattern} {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			if p, ok := decodeProposal(m[1]); ok {
				return p, true
			}
		}
	}
	return playlist.Proposal{}, false
}

func decodeProposal(block string) (playlist.Proposal, bool) {
	var generic map[string]any
	if err := json.Unmarshal([]byte(block), &generic); err != nil {
		zlog.Debug().Msgf("fenced block is not a JSON object: error=%v", err)
		return playlist.Proposal{}, false
	}

	var raw rawProposal
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &raw,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return playlist.Proposal{}, false
	}
	if err := decoder.Decode(generic); err != nil {
		zlog.Debug().Msgf("fenced block is not a playlist proposal: error=%v", err)
		return playlist.Proposal{}, false
	}

	name := strings.TrimSpace(raw.PlaylistName)
	if name == "" {
		name = strings.TrimSpace(raw.Name)
	}

	tracks := make([]track.Track, 0, len(raw.Tracks))
	for _, t := range raw.Tracks {
		t.Title = strings.TrimSpace(t.Title)
		t.Artist = strings.TrimSpace(t.Artist)
		if t.Title == "" {
			continue
		}
		tracks = append(tracks, t)
	}

	if name == "" || len(tracks) == 0 {
		return playlist.Proposal{}, false
	}

	return playlist.Proposal{Name: name, Tracks: tracks}, true
}
