package engine

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/emersion/go-ical"
	"github.com/tartampluch/photo-time-sleuth/internal/config"
)

// CalendarExporter renders the registry as an iCalendar feed of birthdays.
type CalendarExporter struct {
	Clock Clock // Interface for time mocking.
}

// Export builds one all-day event per record for the previous, current and
// next year. Records whose birthday is not a real calendar date are skipped.
func (c *CalendarExporter) Export(records []BirthdayRecord) ([]byte, error) {
	now := c.Clock.Now()

	cal := ical.NewCalendar()
	cal.Props.SetText(config.PropVersion, config.ICalVersion)
	cal.Props.SetText(config.PropProdid, config.ICalProdid)
	cal.Props.SetText(config.PropXWRCalName, config.ICalCalName)
	cal.Props.SetText(config.PropCalScale, config.ICalScale)
	cal.Props.SetText(config.PropMethod, config.ICalMethod)

	dtStampProp := ical.NewProp(config.PropDTStamp)
	dtStampProp.SetDateTime(now.UTC())

	for _, r := range records {
		birthDate, err := r.Date()
		if err != nil {
			slog.Debug(config.MsgSkippedDate,
				config.LogKeyComponent, config.CompEngine,
				config.LogKeyName, r.Name,
				config.LogKeyValue, r.Birthday)
			continue
		}

		for _, e := range createEvents(r.Name, birthDate, now, uidFor(r.Name, birthDate)) {
			e.Props.Set(dtStampProp)
			cal.Children = append(cal.Children, e.Component)
		}
	}

	if len(cal.Children) == 0 {
		return []byte(config.StubVCalendar), nil
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrICalEncode, err)
	}

	slog.Debug(config.MsgCalendarBuilt,
		config.LogKeyComponent, config.CompEngine,
		config.LogKeyCount, len(cal.Children))
	return buf.Bytes(), nil
}

// uidFor derives a UID base that stays stable across exports.
func uidFor(name string, birthDate time.Time) string {
	input := fmt.Sprintf(config.FormatHashInput, name, birthDate.Format(time.RFC3339), config.UIDSalt)
	hash := sha256.Sum256([]byte(input))
	return fmt.Sprintf("%x", hash[:config.UIDHashLength])
}

// createEvents generates events for CurrentYear-1, CurrentYear and CurrentYear+1,
// never before the year of birth.
func createEvents(name string, birthDate, now time.Time, uidBase string) []*ical.Event {
	currentYear := now.Year()
	loc := now.Location()

	var events []*ical.Event
	for _, y := range []int{currentYear - 1, currentYear, currentYear + 1} {
		if y < birthDate.Year() {
			continue
		}

		event := ical.NewEvent()
		event.Props.SetText(config.PropUID, fmt.Sprintf(config.FormatUID, uidBase, y, config.ICalDomain))
		event.Props.SetText(config.PropSummary, fmt.Sprintf(config.FormatSummary, name))

		// Feb 29 becomes Mar 1 in non-leap years.
		dtStartProp := ical.NewProp(config.PropDTStart)
		dtStartProp.SetDate(time.Date(y, birthDate.Month(), birthDate.Day(), 0, 0, 0, 0, loc))
		event.Props.Set(dtStartProp)

		events = append(events, event)
	}
	return events
}
