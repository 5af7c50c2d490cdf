// conf/validate.go

package conf

import (
	"fmt"
	"strings"
	"time"
)

// Metadata source types accepted in the station catalogue
const (
	MetadataTypeICY        = "icy"
	MetadataTypePageScrape = "page-scrape"
	MetadataTypeJSONAPI    = "json-api"
)

const minPollInterval = 5 * time.Second

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}
	collect := func(errs ...error) {
		for _, err := range errs {
			if err != nil {
				ve.Errors = append(ve.Errors, err.Error())
			}
		}
	}

	collect(validateDatabaseSettings(&settings.Database))
	collect(validateScraperSettings(&settings.Scraper)...)
	collect(validateSchedulerSettings(&settings.Scheduler)...)
	collect(validateWorkHours(&settings.Alerts.WorkHours)...)
	collect(validateRealtimeSettings(&settings.Realtime)...)
	collect(validateStations(settings.Stations)...)
	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		collect(fmt.Errorf("sentry.dsn is required when sentry is enabled"))
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateDatabaseSettings(s *DatabaseSettings) error {
	switch s.Type {
	case "sqlite":
		if s.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	case "mysql":
		if s.MySQL.Host == "" || s.MySQL.Database == "" {
			return fmt.Errorf("database.mysql.host and database.mysql.database are required")
		}
	default:
		return fmt.Errorf("database.type must be sqlite or mysql, got %q", s.Type)
	}
	return nil
}

func validateScraperSettings(s *ScraperSettings) []error {
	var errs []error
	if s.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("scraper.timeout must be positive"))
	}
	if s.ICY.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("scraper.icy.timeout must be positive"))
	}
	if t := s.PageScrape.URLTemplate; t != "" && strings.Count(t, "%s") != 1 {
		errs = append(errs, fmt.Errorf("scraper.pagescrape.urltemplate must contain exactly one %%s"))
	}
	if t := s.JSONAPI.URLTemplate; t != "" && strings.Count(t, "%d") != 1 {
		errs = append(errs, fmt.Errorf("scraper.jsonapi.urltemplate must contain exactly one %%d"))
	}
	if s.JSONAPI.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("scraper.jsonapi.ratelimit cannot be negative"))
	}
	if s.PageScrape.MemoryLimitMB < 0 {
		errs = append(errs, fmt.Errorf("scraper.pagescrape.memorylimitmb cannot be negative"))
	}
	return errs
}

func validateSchedulerSettings(s *SchedulerSettings) []error {
	var errs []error
	if s.Workers < 1 {
		errs = append(errs, fmt.Errorf("scheduler.workers must be at least 1"))
	}
	if s.DefaultInterval < minPollInterval {
		errs = append(errs, fmt.Errorf("scheduler.defaultinterval must be at least %s", minPollInterval))
	}
	if s.ResyncInterval < 0 {
		errs = append(errs, fmt.Errorf("scheduler.resyncinterval cannot be negative"))
	}
	return errs
}

func validateWorkHours(s *WorkHoursSettings) []error {
	if !s.Enabled {
		return nil
	}
	var errs []error
	start, err := ParseClock(s.Start)
	if err != nil {
		errs = append(errs, fmt.Errorf("alerts.workhours.start must be HH:MM: %w", err))
	}
	end, err := ParseClock(s.End)
	if err != nil {
		errs = append(errs, fmt.Errorf("alerts.workhours.end must be HH:MM: %w", err))
	}
	if len(errs) == 0 && end <= start {
		errs = append(errs, fmt.Errorf("alerts.workhours.end must be after start"))
	}
	if _, err := LoadTimezone(s.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("alerts.workhours.timezone: %w", err))
	}
	return errs
}

func validateRealtimeSettings(s *RealtimeSettings) []error {
	var errs []error
	if s.MQTT.Enabled {
		if s.MQTT.Broker == "" {
			errs = append(errs, fmt.Errorf("realtime.mqtt.broker is required when mqtt is enabled"))
		}
		if s.MQTT.QoS < 0 || s.MQTT.QoS > 2 {
			errs = append(errs, fmt.Errorf("realtime.mqtt.qos must be 0, 1 or 2"))
		}
	}
	if s.Push.Enabled && len(s.Push.URLs) == 0 {
		errs = append(errs, fmt.Errorf("realtime.push.urls is required when push is enabled"))
	}
	return errs
}

// validateStations checks the catalogue entries for the fields their source type needs
func validateStations(stations []StationConfig) []error {
	var errs []error
	seen := make(map[string]bool, len(stations))
	for i, st := range stations {
		ref := fmt.Sprintf("stations[%d]", i)
		if st.Slug == "" {
			errs = append(errs, fmt.Errorf("%s: slug is required", ref))
		} else {
			ref = fmt.Sprintf("station %q", st.Slug)
			if seen[st.Slug] {
				errs = append(errs, fmt.Errorf("%s: duplicate slug", ref))
			}
			seen[st.Slug] = true
		}
		if st.Name == "" {
			errs = append(errs, fmt.Errorf("%s: name is required", ref))
		}
		switch st.MetadataType {
		case MetadataTypeICY:
			if st.StreamURL == "" {
				errs = append(errs, fmt.Errorf("%s: streamurl is required for icy", ref))
			}
		case MetadataTypePageScrape:
			if st.SourceSlug == "" {
				errs = append(errs, fmt.Errorf("%s: sourceslug is required for page-scrape", ref))
			}
		case MetadataTypeJSONAPI:
			if st.SourceID <= 0 {
				errs = append(errs, fmt.Errorf("%s: sourceid is required for json-api", ref))
			}
		default:
			errs = append(errs, fmt.Errorf("%s: unknown metadatatype %q", ref, st.MetadataType))
		}
		if st.PollInterval != 0 && time.Duration(st.PollInterval)*time.Second < minPollInterval {
			errs = append(errs, fmt.Errorf("%s: pollinterval must be at least %d seconds", ref, int(minPollInterval.Seconds())))
		}
		if _, err := LoadTimezone(st.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("%s: timezone: %w", ref, err))
		}
	}
	return errs
}
