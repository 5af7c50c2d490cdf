package events

import (
	"strings"
	"time"

	"github.com/tphakala/radiotracker/internal/datastore"
)

// Event type identifiers
const (
	EventTypeNowPlaying     = "nowplaying"
	EventTypeDuplicateAlert = "duplicate-alert"
)

// Channel names
const (
	ChannelPlays  = "plays"
	ChannelAlerts = "alerts"
)

const stationChannelPrefix = "station:"

// StationChannel returns the per-station channel name
func StationChannel(slug string) string {
	return stationChannelPrefix + slug
}

// ParseStationChannel returns the slug of a per-station channel. ok is false
// for the global channels.
func ParseStationChannel(channel string) (slug string, ok bool) {
	return strings.CutPrefix(channel, stationChannelPrefix)
}

// NowPlayingEvent is published after a new play has been committed.
type NowPlayingEvent struct {
	Station  datastore.Station `json:"station"`
	Song     datastore.Song    `json:"song"`
	Play     datastore.Play    `json:"play"`
	PlayedAt time.Time         `json:"playedAt"`
}

func (e *NowPlayingEvent) EventType() string    { return EventTypeNowPlaying }
func (e *NowPlayingEvent) StationSlug() string  { return e.Station.Slug }
func (e *NowPlayingEvent) Timestamp() time.Time { return e.PlayedAt }

// Channels implements Event
func (e *NowPlayingEvent) Channels() []string {
	return []string{StationChannel(e.Station.Slug), ChannelPlays}
}

// DuplicateAlertEvent is published when a song plays more than once inside a
// station's work-hours window.
type DuplicateAlertEvent struct {
	Station     datastore.Station `json:"station"`
	Song        datastore.Song    `json:"song"`
	Count       int64             `json:"count"`
	Plays       []datastore.Play  `json:"plays"`
	WindowStart time.Time         `json:"windowStart"`
	WindowEnd   time.Time         `json:"windowEnd"`
	DetectedAt  time.Time         `json:"detectedAt"`
}

func (e *DuplicateAlertEvent) EventType() string    { return EventTypeDuplicateAlert }
func (e *DuplicateAlertEvent) StationSlug() string  { return e.Station.Slug }
func (e *DuplicateAlertEvent) Timestamp() time.Time { return e.DetectedAt }

// Channels implements Event
func (e *DuplicateAlertEvent) Channels() []string {
	return []string{StationChannel(e.Station.Slug), ChannelAlerts}
}
