package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/tartampluch/photo-time-sleuth/internal/config"
)

// Estimator errors.
var (
	ErrInvalidDate   = errors.New(config.ErrInvalidDate)
	ErrUnknownAnchor = errors.New(config.ErrUnknownAnchor)
)

// SeasonAnchor is the reference point an estimated date is snapped to.
type SeasonAnchor string

const (
	AnchorBirthday  SeasonAnchor = "birthday"
	AnchorChristmas SeasonAnchor = "christmas"
	AnchorSpring    SeasonAnchor = "spring"
	AnchorSummer    SeasonAnchor = "summer"
	AnchorFall      SeasonAnchor = "fall"
	AnchorWinter    SeasonAnchor = "winter"
)

type monthDay struct {
	month time.Month
	day   int
}

// anchorDates holds the fixed (month, day) of every anchor except AnchorBirthday.
var anchorDates = map[SeasonAnchor]monthDay{
	AnchorChristmas: {time.December, 25},
	AnchorSpring:    {time.March, 1},
	AnchorSummer:    {time.June, 1},
	AnchorFall:      {time.September, 1},
	AnchorWinter:    {time.December, 1},
}

// Anchors lists every anchor in display order.
func Anchors() []SeasonAnchor {
	return []SeasonAnchor{AnchorBirthday, AnchorChristmas, AnchorSpring, AnchorSummer, AnchorFall, AnchorWinter}
}

// ParseAnchor maps an anchor name to its SeasonAnchor.
func ParseAnchor(name string) (SeasonAnchor, error) {
	a := SeasonAnchor(name)
	if !a.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownAnchor, name)
	}
	return a, nil
}

// Valid reports whether a is one of the enumerated anchors.
func (a SeasonAnchor) Valid() bool {
	if a == AnchorBirthday {
		return true
	}
	_, ok := anchorDates[a]
	return ok
}

// Estimate advances birthday by ageYears years of 365.25 days and snaps the
// result to the nearest occurrence of anchor.
//
// The returned time is midnight of the selected date in birthday's location.
// For anchors other than AnchorBirthday the day of month always equals the
// anchor's day. When two occurrences are equally close, the earlier entry of
// [same year, previous year, next year] wins.
func Estimate(birthday time.Time, ageYears int, anchor SeasonAnchor) (time.Time, error) {
	if !anchor.Valid() {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownAnchor, anchor)
	}

	estimated := addAgeYears(birthday, ageYears)
	if anchor == AnchorBirthday {
		return startOfDay(estimated), nil
	}
	return nearestOccurrence(estimated, anchorDates[anchor]), nil
}

// EstimateString is Estimate for a YYYY-MM-DD birthday, returning YYYY-MM-DD.
func EstimateString(birthday string, ageYears int, anchor SeasonAnchor) (string, error) {
	bday, err := ParseCalendarDate(birthday)
	if err != nil {
		return "", err
	}
	est, err := Estimate(bday, ageYears, anchor)
	if err != nil {
		return "", err
	}
	return est.Format(config.DateFormatISO), nil
}

// ParseCalendarDate parses YYYY-MM-DD (one or two digit month and day) as a
// real calendar date in UTC. "2021-02-30" is rejected.
func ParseCalendarDate(value string) (time.Time, error) {
	t, err := time.Parse(config.DateFormatISOLoose, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return t, nil
}

// addAgeYears adds years * 365.25 days. Whole days go through AddDate so large
// ages cannot overflow time.Duration; the leftover quarter days become hours.
func addAgeYears(t time.Time, years int) time.Time {
	quarters := floorMod(years, config.QuarterDaysPerDay)
	days := years*config.DaysPerYear + floorDiv(years, config.QuarterDaysPerDay)
	return t.AddDate(0, 0, days).Add(time.Duration(quarters*config.HoursPerQuarterDay) * time.Hour)
}

// nearestOccurrence picks the anchor date closest to estimated among the
// same, previous and next year. Candidates keep estimated's clock time so the
// distance is counted in whole days.
func nearestOccurrence(estimated time.Time, md monthDay) time.Time {
	year := estimated.Year()
	hour, minute, sec := estimated.Clock()
	loc := estimated.Location()

	candidates := []time.Time{
		time.Date(year, md.month, md.day, hour, minute, sec, estimated.Nanosecond(), loc),
		time.Date(year-1, md.month, md.day, hour, minute, sec, estimated.Nanosecond(), loc),
		time.Date(year+1, md.month, md.day, hour, minute, sec, estimated.Nanosecond(), loc),
	}

	best := candidates[0]
	bestDist := dayDistance(best, estimated)
	for _, c := range candidates[1:] {
		// Strict comparison keeps the first candidate on ties.
		if d := dayDistance(c, estimated); d < bestDist {
			best, bestDist = c, d
		}
	}

	return time.Date(best.Year(), best.Month(), md.day, 0, 0, 0, 0, loc)
}

// dayDistance is |floor((a - b) / 24h)|.
func dayDistance(a, b time.Time) int {
	diff := a.Sub(b)
	days := int(diff / (24 * time.Hour))
	if diff%(24*time.Hour) < 0 {
		days--
	}
	if days < 0 {
		return -days
	}
	return days
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	return a - floorDiv(a, b)*b
}
