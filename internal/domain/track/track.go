// Package track provides the Track proposal and its catalog resolution outcome.
package track

// Track is a title/artist pair proposed by the assistant.
// It has no identity beyond the two strings; duplicates are resolved independently.
type Track struct {
	Title  string `json:"title" mapstructure:"title"`
	Artist string `json:"artist" mapstructure:"artist"`
}

// Query returns the free-text catalog search query for the track.
func (t Track) Query() string {
	return t.Title + " " + t.Artist
}

// String returns "title - artist".
func (t Track) String() string {
	return t.Title + " - " + t.Artist
}

// Match is the outcome of resolving one Track against the catalog.
// A zero Match means not found.
type Match struct {
	URI   string // Opaque catalog identifier, set only when Found
	Found bool
}

// Found returns a resolved Match carrying uri unchanged.
func Found(uri string) Match {
	return Match{URI: uri, Found: true}
}

// NotFound returns an unresolved Match.
func NotFound() Match {
	return Match{}
}
