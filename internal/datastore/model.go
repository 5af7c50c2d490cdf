// model.go: gorm models for stations, songs and plays
package datastore

import (
	"slices"
	"time"
)

// MetadataType selects how a station's now-playing signal is extracted
type MetadataType string

const (
	MetadataTypeICY        MetadataType = "icy"
	MetadataTypePageScrape MetadataType = "page-scrape"
	MetadataTypeJSONAPI    MetadataType = "json-api"
)

// MetadataTypes lists every supported extraction method
var MetadataTypes = []MetadataType{MetadataTypeICY, MetadataTypePageScrape, MetadataTypeJSONAPI}

// Valid reports whether t is a known metadata type
func (t MetadataType) Valid() bool {
	return slices.Contains(MetadataTypes, t)
}

// NonSongType classifies catalogue entries that are not music
type NonSongType string

const (
	NonSongNone       NonSongType = ""
	NonSongShow       NonSongType = "show"
	NonSongCommercial NonSongType = "commercial"
	NonSongStationID  NonSongType = "station-id"
	NonSongWeather    NonSongType = "weather"
	NonSongNews       NonSongType = "news"
	NonSongOther      NonSongType = "other"
)

// PlaySource records where a play row came from
type PlaySource string

const (
	PlaySourceLive   PlaySource = "live"
	PlaySourceLegacy PlaySource = "legacy"
)

// Station is a tracked radio stream
type Station struct {
	ID            uint         `gorm:"primaryKey" json:"id"`
	Slug          string       `gorm:"size:100;not null;uniqueIndex" json:"slug"`
	Name          string       `gorm:"size:255;not null" json:"name"`
	StreamURL     string       `gorm:"size:1024" json:"streamUrl"`
	MetadataType  MetadataType `gorm:"size:20;not null" json:"metadataType"`
	SourceSlug    string       `gorm:"size:255" json:"sourceSlug,omitempty"`
	SourceID      int64        `json:"sourceId,omitempty"`
	PollInterval  int          `gorm:"not null;default:0" json:"pollInterval"` // seconds, 0 means the configured default
	Active        bool         `gorm:"not null;index" json:"active"`
	Timezone      string       `gorm:"size:64" json:"timezone,omitempty"`
	LastScrapedAt *time.Time   `json:"lastScrapedAt,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// Song is a catalogue entry keyed by its normalized title and artist
type Song struct {
	ID               uint        `gorm:"primaryKey" json:"id"`
	Title            string      `gorm:"size:512;not null" json:"title"`
	Artist           string      `gorm:"size:512;not null" json:"artist"`
	NormalizedTitle  string      `gorm:"size:255;not null;uniqueIndex:idx_song_normalized,priority:1" json:"-"`
	NormalizedArtist string      `gorm:"size:255;not null;uniqueIndex:idx_song_normalized,priority:2" json:"-"`
	IsNonSong        bool        `gorm:"not null;default:false" json:"isNonSong"`
	NonSongType      NonSongType `gorm:"size:20" json:"nonSongType,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
}

// Play is one airing of a song on a station. Plays are append-only.
type Play struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	StationID   uint       `gorm:"not null;index;index:idx_play_station_time,priority:1" json:"stationId"`
	SongID      uint       `gorm:"not null;index" json:"songId"`
	PlayedAt    time.Time  `gorm:"not null;index:idx_play_station_time,priority:2" json:"playedAt"`
	RawMetadata string     `gorm:"type:text" json:"rawMetadata,omitempty"`
	Confidence  float64    `gorm:"not null" json:"confidence"`
	Source      PlaySource `gorm:"size:10;not null;default:live" json:"source"`

	Station *Station `gorm:"foreignKey:StationID;constraint:OnDelete:CASCADE" json:"station,omitempty"`
	Song    *Song    `gorm:"foreignKey:SongID;constraint:OnDelete:RESTRICT" json:"song,omitempty"`
}

// SongKey is the normalized identity of a song
type SongKey struct {
	Title  string
	Artist string
}

// String renders the key for cache and singleflight use
func (k SongKey) String() string {
	return k.Artist + "\x1f" + k.Title
}
