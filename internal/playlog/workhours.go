package playlog

import (
	"time"

	"github.com/tphakala/radiotracker/internal/conf"
	"github.com/tphakala/radiotracker/internal/errors"
	"github.com/tphakala/radiotracker/internal/logger"
)

// Default work-hours bounds
const (
	DefaultWorkStart = 9 * time.Hour
	DefaultWorkEnd   = 17 * time.Hour
)

// WorkHours is the weekday window in which repeated plays raise an alert
type WorkHours struct {
	Enabled  bool
	Start    time.Duration // offset from local midnight
	End      time.Duration // exclusive
	Location *time.Location
}

// DefaultWorkHours returns Monday to Friday 09:00-17:00 in the local zone
func DefaultWorkHours() WorkHours {
	return WorkHours{
		Enabled:  true,
		Start:    DefaultWorkStart,
		End:      DefaultWorkEnd,
		Location: time.Local,
	}
}

// WorkHoursFromSettings converts alert settings, applying defaults for blank fields
func WorkHoursFromSettings(s *conf.WorkHoursSettings) (WorkHours, error) {
	wh := DefaultWorkHours()
	wh.Enabled = s.Enabled

	if s.Start != "" {
		start, err := conf.ParseClock(s.Start)
		if err != nil {
			return wh, workHoursError(err, "start", s.Start)
		}
		wh.Start = start
	}
	if s.End != "" {
		end, err := conf.ParseClock(s.End)
		if err != nil {
			return wh, workHoursError(err, "end", s.End)
		}
		wh.End = end
	}
	if wh.End <= wh.Start {
		return wh, workHoursError(errors.NewStd("end must be after start"), "end", s.End)
	}

	loc, err := conf.LoadTimezone(s.Timezone)
	if err != nil {
		return wh, workHoursError(err, "timezone", s.Timezone)
	}
	wh.Location = loc
	return wh, nil
}

// Window returns the [from, to) work-hours window containing t, evaluated in
// loc (or the configured zone when loc is nil). ok is false when t falls on a
// weekend or outside the daily bounds.
func (w WorkHours) Window(t time.Time, loc *time.Location) (from, to time.Time, ok bool) {
	if !w.Enabled {
		return time.Time{}, time.Time{}, false
	}
	if loc == nil {
		loc = w.Location
	}
	if loc == nil {
		loc = time.Local
	}

	local := t.In(loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return time.Time{}, time.Time{}, false
	}

	y, m, d := local.Date()
	from = clockOn(y, m, d, w.Start, loc)
	to = clockOn(y, m, d, w.End, loc)
	if local.Before(from) || !local.Before(to) {
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

// clockOn builds a wall-clock time on the given date so DST shifts do not
// move the window edges.
func clockOn(y int, m time.Month, d int, offset time.Duration, loc *time.Location) time.Time {
	h := int(offset / time.Hour)
	mins := int((offset % time.Hour) / time.Minute)
	return time.Date(y, m, d, h, mins, 0, 0, loc)
}

// stationLocation resolves a station's zone, falling back to the configured one
func (w WorkHours) stationLocation(name string) *time.Location {
	if name == "" {
		return w.Location
	}
	loc, err := conf.LoadTimezone(name)
	if err != nil {
		GetLogger().Warn("invalid station timezone, using configured zone",
			logger.String("timezone", name),
			logger.Error(err))
		return w.Location
	}
	return loc
}

func workHoursError(err error, field, value string) error {
	return errors.New(err).
		Component("playlog").
		Category(errors.CategoryConfiguration).
		Context("field", "alerts.workhours."+field).
		Context("value", value).
		Build()
}
