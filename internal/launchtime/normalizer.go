package launchtime

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"launchsync/internal/assert"
	"launchsync/internal/components/chrono"
)

// Dialect describes how a source writes its times.
type Dialect struct {
	Name string
	// Input is the zone the source's wall clock times are assumed to be in,
	// nil means the times are already in the target zone.
	Input *time.Location
}

// DialectUTC treats scraped times as UTC.
//
// This is an assumption, listings may actually render times in a viewer or
// site local zone.
var DialectUTC = Dialect{Name: "utc", Input: time.UTC}

// DialectTargetLocal treats scraped times as already being in the target zone.
var DialectTargetLocal = Dialect{Name: "target-local"}

// Instant is a normalized point in time.
type Instant struct {
	Millis int64
	// ISO is the instant formatted as RFC 3339 in the target zone.
	ISO string
}

// Normalizer turns loosely formatted date and time text into instants in a
// fixed target zone.
type Normalizer struct {
	target *time.Location
	clock  chrono.API
}

func NewNormalizer(target *time.Location, clock chrono.API) Normalizer {
	assert.NotNil(target)
	assert.NotNil(clock)
	return Normalizer{target: target, clock: clock}
}

func (n Normalizer) Target() *time.Location {
	return n.target
}

var referenceMonths = []string{
	"jan", "feb", "mar", "apr", "may", "jun",
	"jul", "aug", "sep", "oct", "nov", "dec",
}

func parseMonth(text string) (time.Month, bool) {
	text = strings.ToLower(text)
	if len(text) < 3 {
		return 0, false
	}
	for i, month := range referenceMonths {
		if text[:3] == month {
			return time.January + time.Month(i), true
		}
	}
	return 0, false
}

var (
	monthDayRegex = regexp.MustCompile(`([A-Za-z]{3,9})\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
	yearRegex     = regexp.MustCompile(`\b(\d{4})\b`)
	clockRegex    = regexp.MustCompile(`(?i)\b(\d{1,2}):(\d{2})(?::(\d{2}))?(?:\s*([ap])\.?m\.?)?`)
)

type wallClock struct {
	hour, minute, second int
}

// parseClock parses the first time of day found in text, no match means
// midnight. A trailing AM/PM selects 12 hour parsing.
func parseClock(text string) (wallClock, bool) {
	match := clockRegex.FindStringSubmatch(text)
	if match == nil {
		return wallClock{}, true
	}

	hour, err := strconv.Atoi(match[1])
	if err != nil {
		return wallClock{}, false
	}
	minute, err := strconv.Atoi(match[2])
	if err != nil || minute > 59 {
		return wallClock{}, false
	}
	second := 0
	if match[3] != "" {
		second, err = strconv.Atoi(match[3])
		if err != nil || second > 59 {
			return wallClock{}, false
		}
	}

	switch strings.ToLower(match[4]) {
	case "a":
		if hour < 1 || hour > 12 {
			return wallClock{}, false
		}
		if hour == 12 {
			hour = 0
		}
	case "p":
		if hour < 1 || hour > 12 {
			return wallClock{}, false
		}
		if hour != 12 {
			hour += 12
		}
	default:
		if hour > 23 {
			return wallClock{}, false
		}
	}

	return wallClock{hour: hour, minute: minute, second: second}, true
}

// parseDate finds the first "<month> <day>" pair whose month is recognized
// and the first four digit year in text.
func parseDate(text string) (month time.Month, day int, year int, hasYear bool, ok bool) {
	for _, match := range monthDayRegex.FindAllStringSubmatch(text, -1) {
		m, found := parseMonth(match[1])
		if !found {
			continue
		}
		d, err := strconv.Atoi(match[2])
		if err != nil {
			return 0, 0, 0, false, false
		}
		month = m
		day = d
		ok = true
		break
	}
	if !ok {
		return 0, 0, 0, false, false
	}

	// the clock is stripped so "10:30 2023" never reads 1030 as a year
	yearMatch := yearRegex.FindStringSubmatch(clockRegex.ReplaceAllString(text, " "))
	if yearMatch != nil {
		y, err := strconv.Atoi(yearMatch[1])
		if err != nil {
			return 0, 0, 0, false, false
		}
		year = y
		hasYear = true
	}
	return month, day, year, hasYear, true
}

// Normalize parses separate date and time fragments, ex. ("SEP 18 2023", "02:47 AM").
func (n Normalizer) Normalize(dateText, timeText string, dialect Dialect) (Instant, bool) {
	return n.NormalizeCombined(dateText+" "+timeText, dialect)
}

// NormalizeCombined parses a single datetime string, ex. "Mon Sep 18, 2023 02:47 AM".
//
// It returns false when no recognizable month is present or the date does
// not exist, it never panics.
func (n Normalizer) NormalizeCombined(text string, dialect Dialect) (instant Instant, ok bool) {
	defer func() {
		if recover() != nil {
			instant = Instant{}
			ok = false
		}
	}()

	input := dialect.Input
	if input == nil {
		input = n.target
	}

	month, day, year, hasYear, ok := parseDate(text)
	if !ok {
		return Instant{}, false
	}
	if !hasYear {
		year = n.clock.Now().In(input).Year()
	}
	clock, ok := parseClock(text)
	if !ok {
		return Instant{}, false
	}

	t := time.Date(year, month, day, clock.hour, clock.minute, clock.second, 0, input)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return Instant{}, false
	}

	return Instant{
		Millis: t.UnixMilli(),
		ISO:    t.In(n.target).Format(time.RFC3339),
	}, true
}
