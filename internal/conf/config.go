// Package conf loads and validates radiotracker settings.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/radiotracker/internal/errors"
	"github.com/tphakala/radiotracker/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// Settings is the root configuration
type Settings struct {
	Main       MainSettings         `yaml:"main" mapstructure:"main"`
	Database   DatabaseSettings     `yaml:"database" mapstructure:"database"`
	Scraper    ScraperSettings      `yaml:"scraper" mapstructure:"scraper"`
	Scheduler  SchedulerSettings    `yaml:"scheduler" mapstructure:"scheduler"`
	Alerts     AlertSettings        `yaml:"alerts" mapstructure:"alerts"`
	Classifier ClassifierSettings   `yaml:"classifier" mapstructure:"classifier"`
	Realtime   RealtimeSettings     `yaml:"realtime" mapstructure:"realtime"`
	WebServer  WebServerSettings    `yaml:"webserver" mapstructure:"webserver"`
	Sentry     SentrySettings       `yaml:"sentry" mapstructure:"sentry"`
	Logging    logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Stations   []StationConfig      `yaml:"stations" mapstructure:"stations"`
}

type MainSettings struct {
	Name  string `yaml:"name" mapstructure:"name"`   // instance name, used in MQTT client ids and push titles
	Debug bool   `yaml:"debug" mapstructure:"debug"` // true forces debug logging
}

// DatabaseSettings selects and configures the play history store
type DatabaseSettings struct {
	Type               string         `yaml:"type" mapstructure:"type"` // sqlite or mysql
	SQLite             SQLiteSettings `yaml:"sqlite" mapstructure:"sqlite"`
	MySQL              MySQLSettings  `yaml:"mysql" mapstructure:"mysql"`
	SlowQueryThreshold time.Duration  `yaml:"slowquerythreshold" mapstructure:"slowquerythreshold"`
}

type SQLiteSettings struct {
	Path string `yaml:"path" mapstructure:"path"`
}

type MySQLSettings struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     string `yaml:"port" mapstructure:"port"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
}

// ScraperSettings configures the upstream metadata extractors
type ScraperSettings struct {
	Timeout    time.Duration      `yaml:"timeout" mapstructure:"timeout"` // per-extraction deadline
	UserAgent  string             `yaml:"useragent" mapstructure:"useragent"`
	ICY        ICYSettings        `yaml:"icy" mapstructure:"icy"`
	PageScrape PageScrapeSettings `yaml:"pagescrape" mapstructure:"pagescrape"`
	JSONAPI    JSONAPISettings    `yaml:"jsonapi" mapstructure:"jsonapi"`
}

type ICYSettings struct {
	Timeout            time.Duration `yaml:"timeout" mapstructure:"timeout"` // wait for one metadata boundary
	InsecureSkipVerify bool          `yaml:"insecureskipverify" mapstructure:"insecureskipverify"`
}

type PageScrapeSettings struct {
	URLTemplate   string `yaml:"urltemplate" mapstructure:"urltemplate"` // fmt template with one %s for the station page slug
	ChromePath    string `yaml:"chromepath" mapstructure:"chromepath"`   // empty means auto-detect
	Headless      bool   `yaml:"headless" mapstructure:"headless"`
	MemoryLimitMB int    `yaml:"memorylimitmb" mapstructure:"memorylimitmb"` // recycle browser above this RSS, 0 disables
}

type JSONAPISettings struct {
	URLTemplate string  `yaml:"urltemplate" mapstructure:"urltemplate"` // fmt template with one %d for the feed id
	RateLimit   float64 `yaml:"ratelimit" mapstructure:"ratelimit"`     // requests per second, 0 disables
	Burst       int     `yaml:"burst" mapstructure:"burst"`
}

// SchedulerSettings configures recurring station polling
type SchedulerSettings struct {
	Workers         int           `yaml:"workers" mapstructure:"workers"`
	DefaultInterval time.Duration `yaml:"defaultinterval" mapstructure:"defaultinterval"` // used when a station has no interval
	ResyncInterval  time.Duration `yaml:"resyncinterval" mapstructure:"resyncinterval"`   // 0 disables periodic resync
	RunImmediately  bool          `yaml:"runimmediately" mapstructure:"runimmediately"`
}

type AlertSettings struct {
	WorkHours WorkHoursSettings `yaml:"workhours" mapstructure:"workhours"`
}

// WorkHoursSettings bounds the weekday window for duplicate play alerts
type WorkHoursSettings struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Start    string `yaml:"start" mapstructure:"start"`       // HH:MM
	End      string `yaml:"end" mapstructure:"end"`           // HH:MM, exclusive
	Timezone string `yaml:"timezone" mapstructure:"timezone"` // fallback when a station has none
}

type ClassifierSettings struct {
	// Aliases maps a station name to extra artist strings that identify the station itself
	Aliases map[string][]string `yaml:"aliases" mapstructure:"aliases"`
}

type RealtimeSettings struct {
	MQTT MQTTSettings `yaml:"mqtt" mapstructure:"mqtt"`
	Push PushSettings `yaml:"push" mapstructure:"push"`
	SSE  SSESettings  `yaml:"sse" mapstructure:"sse"`
}

type MQTTSettings struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	Broker      string `yaml:"broker" mapstructure:"broker"`
	ClientID    string `yaml:"clientid" mapstructure:"clientid"`
	Username    string `yaml:"username" mapstructure:"username"`
	Password    string `yaml:"password" mapstructure:"password"`
	TopicPrefix string `yaml:"topicprefix" mapstructure:"topicprefix"`
	QoS         int    `yaml:"qos" mapstructure:"qos"`
	Retain      bool   `yaml:"retain" mapstructure:"retain"`
}

// PushSettings configures shoutrrr delivery of duplicate play alerts
type PushSettings struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	URLs    []string      `yaml:"urls" mapstructure:"urls"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

type SSESettings struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

type WebServerSettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Listen  string `yaml:"listen" mapstructure:"listen"`
}

type SentrySettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	DSN     string `yaml:"dsn" mapstructure:"dsn"`
}

// StationConfig is one entry of the station catalogue imported by "stations import"
type StationConfig struct {
	Slug         string `yaml:"slug" mapstructure:"slug"`
	Name         string `yaml:"name" mapstructure:"name"`
	StreamURL    string `yaml:"streamurl" mapstructure:"streamurl"`
	MetadataType string `yaml:"metadatatype" mapstructure:"metadatatype"` // icy, page-scrape or json-api
	SourceSlug   string `yaml:"sourceslug,omitempty" mapstructure:"sourceslug"`
	SourceID     int64  `yaml:"sourceid,omitempty" mapstructure:"sourceid"`
	PollInterval int    `yaml:"pollinterval,omitempty" mapstructure:"pollinterval"` // seconds
	Active       *bool  `yaml:"active,omitempty" mapstructure:"active"`             // nil means active
	Timezone     string `yaml:"timezone,omitempty" mapstructure:"timezone"`
}

// IsActive reports the effective active flag
func (s StationConfig) IsActive() bool {
	return s.Active == nil || *s.Active
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables. An explicit
// configFile overrides the search path.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, errors.New(fmt.Errorf("error initializing viper: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if settings.Main.Debug {
		settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settings, nil
}

// initViper registers defaults and env bindings, then reads the config file.
// A missing file is created from the embedded default.
func initViper(configFile string) error {
	viper.SetConfigType("yaml")
	setDefaultConfig()

	if err := bindEnvVars(); err != nil {
		return err
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
		return viper.ReadInConfig()
	}

	viper.SetConfigName("config")
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return err
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	err = viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
	return nil
}

// createDefaultConfig writes the embedded config.yaml into dir and reads it
func createDefaultConfig(dir string) error {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded config: %w", err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	viper.SetConfigFile(configPath)
	return viper.ReadInConfig()
}

// GetSettings returns the most recently loaded settings, or nil
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}
