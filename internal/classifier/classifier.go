// Package classifier recognizes now-playing entries that are the station
// talking about itself (shows, idents) rather than a song.
package classifier

import (
	"maps"
	"regexp"
	"strings"

	"github.com/tphakala/radiotracker/internal/songmeta"
)

// Confidence levels
const (
	ConfidenceShowTitle = 1.0 // artist is the station and the title looks like a show
	ConfidenceStation   = 0.9 // artist is the station, title is unremarkable
)

// Result is the outcome of a classification
type Result struct {
	IsShow     bool
	Confidence float64
	Reason     string
}

// showTitle matches normalized titles that name a programme slot. Only a
// leading word boundary is required so plurals match too.
var showTitle = regexp.MustCompile(`\b(` + strings.Join([]string{
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
	"weekend", "breakfast", "drive", "drivetime", `top \d+`, "countdown",
	"mix", "mixtape", "show", "hour", "hits", "request", "morning", "afternoon",
	"evening", "late night", "live", "podcast", "news", "weather",
}, "|") + `)`)

// builtinAliases maps station names to artist strings stations use for
// themselves in metadata.
var builtinAliases = map[string][]string{
	"The Rock":      {"Rock FM", "The Rock FM"},
	"The Edge":      {"Edge FM"},
	"ZM":            {"ZM Online"},
	"Radio Hauraki": {"Hauraki"},
	"More FM":       {"More"},
	"Mai FM":        {"Mai"},
}

// Classifier holds the alias table. It is immutable after New and safe for
// concurrent use.
type Classifier struct {
	aliases map[string]map[string]struct{}
}

// New returns a Classifier with the built-in aliases plus extra, keyed by
// station name. Keys and values are normalized before use.
func New(extra map[string][]string) *Classifier {
	all := maps.Clone(builtinAliases)
	for station, names := range extra {
		all[station] = append(append([]string(nil), all[station]...), names...)
	}

	c := &Classifier{aliases: make(map[string]map[string]struct{}, len(all))}
	for station, names := range all {
		key := songmeta.Normalize(station)
		set := c.aliases[key]
		if set == nil {
			set = make(map[string]struct{}, len(names))
			c.aliases[key] = set
		}
		for _, n := range names {
			if nn := songmeta.Normalize(n); nn != "" {
				set[nn] = struct{}{}
			}
		}
	}
	return c
}

var defaultClassifier = New(nil)

// Classify uses the built-in alias table only.
func Classify(artist, title, stationName string) Result {
	return defaultClassifier.Classify(artist, title, stationName)
}

// Classify decides whether an entry is the station identifying itself. It
// only looks at the title once the artist has been tied to the station.
func (c *Classifier) Classify(artist, title, stationName string) Result {
	a := songmeta.Normalize(artist)
	s := songmeta.Normalize(stationName)
	if a == "" || s == "" {
		return Result{}
	}

	var reason string
	switch {
	case a == s:
		reason = "artist matches station name"
	case len(a) >= 2 && strings.Contains(s, a):
		reason = "station name contains artist"
	case c.isAlias(s, a):
		reason = "artist is a station alias"
	default:
		return Result{}
	}

	if showTitle.MatchString(songmeta.Normalize(title)) {
		return Result{IsShow: true, Confidence: ConfidenceShowTitle, Reason: reason + ", title matches show pattern"}
	}
	return Result{IsShow: true, Confidence: ConfidenceStation, Reason: reason}
}

func (c *Classifier) isAlias(station, artist string) bool {
	set, ok := c.aliases[station]
	if !ok {
		return false
	}
	_, ok = set[artist]
	return ok
}
