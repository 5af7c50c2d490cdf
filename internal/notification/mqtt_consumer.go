package notification

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/tphakala/radiotracker/internal/errors"
	"github.com/tphakala/radiotracker/internal/events"
	"github.com/tphakala/radiotracker/internal/mqtt"
)

// DefaultTopicPrefix is used when realtime.mqtt.topicprefix is empty.
const DefaultTopicPrefix = "radiotracker"

const mqttPublishTimeout = 5 * time.Second

// NowPlayingMessage is the MQTT payload for a new play.
type NowPlayingMessage struct {
	Station     string    `json:"station"`
	StationName string    `json:"stationName"`
	SongID      uint      `json:"songId"`
	PlayID      uint      `json:"playId"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`
	IsNonSong   bool      `json:"isNonSong"`
	NonSongType string    `json:"nonSongType,omitempty"`
	Confidence  float64   `json:"confidence"`
	PlayedAt    time.Time `json:"playedAt"`
}

// DuplicateAlertMessage is the MQTT payload for a duplicate play alert.
type DuplicateAlertMessage struct {
	Station     string      `json:"station"`
	StationName string      `json:"stationName"`
	SongID      uint        `json:"songId"`
	Title       string      `json:"title"`
	Artist      string      `json:"artist"`
	Count       int64       `json:"count"`
	PlayedAt    []time.Time `json:"playedAt"`
	WindowStart time.Time   `json:"windowStart"`
	WindowEnd   time.Time   `json:"windowEnd"`
	DetectedAt  time.Time   `json:"detectedAt"`
}

// MQTTConsumer publishes now-playing and alert events as JSON. Each event
// goes to a per-station topic and an aggregate topic.
type MQTTConsumer struct {
	client mqtt.Client
	prefix string
}

// NewMQTTConsumer creates a consumer publishing under prefix.
func NewMQTTConsumer(client mqtt.Client, prefix string) *MQTTConsumer {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &MQTTConsumer{client: client, prefix: prefix}
}

// Name implements events.EventConsumer
func (c *MQTTConsumer) Name() string { return "mqtt" }

// Topics maps the event's channels to MQTT topics under kind ("nowplaying"
// or "alerts"). A station channel becomes <prefix>/stations/<slug>/<kind>,
// a global channel <prefix>/<kind>.
func (c *MQTTConsumer) Topics(event events.Event, kind string) []string {
	channels := event.Channels()
	topics := make([]string, 0, len(channels))
	for _, ch := range channels {
		if slug, ok := events.ParseStationChannel(ch); ok {
			topics = append(topics, c.prefix+"/stations/"+slug+"/"+kind)
			continue
		}
		topics = append(topics, c.prefix+"/"+kind)
	}
	return topics
}

// ProcessEvent implements events.EventConsumer
func (c *MQTTConsumer) ProcessEvent(event events.Event) error {
	var (
		kind    string
		payload any
	)

	switch e := event.(type) {
	case *events.NowPlayingEvent:
		kind = "nowplaying"
		payload = nowPlayingMessage(e)
	case *events.DuplicateAlertEvent:
		kind = "alerts"
		payload = duplicateAlertMessage(e)
	default:
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.New(err).
			Component("notification").
			Category(errors.CategoryMQTTPublish).
			Context("operation", "marshal_payload").
			Build()
	}

	ctx, cancel := context.WithTimeout(context.Background(), mqttPublishTimeout)
	defer cancel()

	// Connect applies its own cooldown, so this does not hammer a down broker.
	if !c.client.IsConnected() {
		if err := c.client.Connect(ctx); err != nil {
			return err
		}
	}

	var errs []error
	for _, topic := range c.Topics(event, kind) {
		if err := c.client.Publish(ctx, topic, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func nowPlayingMessage(e *events.NowPlayingEvent) NowPlayingMessage {
	return NowPlayingMessage{
		Station:     e.Station.Slug,
		StationName: e.Station.Name,
		SongID:      e.Song.ID,
		PlayID:      e.Play.ID,
		Title:       e.Song.Title,
		Artist:      e.Song.Artist,
		IsNonSong:   e.Song.IsNonSong,
		NonSongType: string(e.Song.NonSongType),
		Confidence:  e.Play.Confidence,
		PlayedAt:    e.PlayedAt,
	}
}

func duplicateAlertMessage(e *events.DuplicateAlertEvent) DuplicateAlertMessage {
	playedAt := make([]time.Time, 0, len(e.Plays))
	for i := range e.Plays {
		playedAt = append(playedAt, e.Plays[i].PlayedAt)
	}
	return DuplicateAlertMessage{
		Station:     e.Station.Slug,
		StationName: e.Station.Name,
		SongID:      e.Song.ID,
		Title:       e.Song.Title,
		Artist:      e.Song.Artist,
		Count:       e.Count,
		PlayedAt:    playedAt,
		WindowStart: e.WindowStart,
		WindowEnd:   e.WindowEnd,
		DetectedAt:  e.DetectedAt,
	}
}
