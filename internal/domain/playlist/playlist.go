// Package playlist provides the playlist Proposal and the materialization Result.
package playlist

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/osa030/tonaly/internal/domain/track"
)

// Proposal is a playlist designed by the assistant, before anything exists on the catalog side.
type Proposal struct {
	Name   string        `json:"playlistName" mapstructure:"playlistName" validate:"required"`
	Tracks []track.Track `json:"tracks" mapstructure:"tracks" validate:"required"`
}

// Created identifies a playlist created on the catalog service.
type Created struct {
	ID   string
	Name string
	URL  string
}

// Result summarizes one materialization.
type Result struct {
	PlaylistID      string
	PlaylistName    string
	ExternalURL     string
	ResolvedCount   int
	UnresolvedCount int
	Unresolved      []track.Track
}

// TotalCount returns the number of proposed tracks the result accounts for.
func (r *Result) TotalCount() int {
	return r.ResolvedCount + r.UnresolvedCount
}

const cellWidth = 38

// Table renders the proposal as a numbered Title/Artist table.
// Cells are padded or truncated to a fixed display width, so wide (CJK) characters stay aligned.
func (p *Proposal) Table() string {
	var b strings.Builder
	bar := strings.Repeat("─", cellWidth+2)

	fmt.Fprintf(&b, "Playlist: %s (%d tracks)\n", p.Name, len(p.Tracks))
	fmt.Fprintf(&b, "┌─────┬%s┬%s┐\n", bar, bar)
	fmt.Fprintf(&b, "│ No. │ %s │ %s │\n", cell("Title"), cell("Artist"))
	fmt.Fprintf(&b, "├─────┼%s┼%s┤\n", bar, bar)
	for i, t := range p.Tracks {
		fmt.Fprintf(&b, "│ %-3d │ %s │ %s │\n", i+1, cell(t.Title), cell(t.Artist))
	}
	fmt.Fprintf(&b, "└─────┴%s┴%s┘\n", bar, bar)

	return b.String()
}

func cell(s string) string {
	return runewidth.FillRight(runewidth.Truncate(s, cellWidth, ""), cellWidth)
}
