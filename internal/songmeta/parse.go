package songmeta

import "strings"

// UnknownArtist is used when raw metadata carries no recognizable artist.
const UnknownArtist = "Unknown Artist"

// separators in priority order; the first one present wins
var separators = []string{" - ", " – ", " — ", ": "}

// Parsed is a raw metadata string split into artist and title.
type Parsed struct {
	Artist string
	Title  string
}

// ParseRawMetadata splits "Artist - Title" style strings. The split happens
// at the first occurrence of the highest priority separator, so later
// separators stay in the title. Input without a usable split yields
// UnknownArtist and the whole trimmed string as title. It never fails.
func ParseRawMetadata(raw string) Parsed {
	trimmed := strings.TrimSpace(raw)

	for _, sep := range separators {
		artist, title, found := strings.Cut(trimmed, sep)
		if !found {
			continue
		}
		artist = strings.TrimSpace(artist)
		title = strings.TrimSpace(title)
		if artist == "" || title == "" {
			break
		}
		return Parsed{Artist: artist, Title: title}
	}

	return Parsed{Artist: UnknownArtist, Title: trimmed}
}
