package gpro

import (
	"log"
	"regexp"
	"sort"
	"strings"
	"time"

	"gridalert/models"
)

// Races start at 19:00 UTC; the feed only carries the day.
const raceStartHourUTC = 19

var (
	htmlTagRe = regexp.MustCompile(`<[^>]*>`)
	ordinalRe = regexp.MustCompile(`(?i)(\d)(st|nd|rd|th)\b`)
)

// ParseFeedEvents extracts race rows from the raw feed, renumbers them 1..N by
// start time, and derives the qualification deadline. Rows that are not races
// or whose date cannot be parsed are skipped.
func ParseFeedEvents(feed []feedEvent, now time.Time) []models.Event {
	var races []models.Event

	for _, ev := range feed {
		if ev.EventType != "R" {
			continue
		}

		idx := ev.IdxReal
		if idx == 0 {
			idx = ev.Idx
		}
		if idx == 0 {
			continue
		}

		day, ok := parseFeedDate(ev.DateEvent, now)
		if !ok {
			log.Printf("[gpro] skipping race %d: cannot parse date %q", idx, ev.DateEvent)
			continue
		}

		start := time.Date(day.Year(), day.Month(), day.Day(), raceStartHourUTC, 0, 0, 0, time.UTC)

		track := ev.TrackName
		if track == "" {
			track = "Race"
		}
		if runes := []rune(track); len(runes) > models.TrackNameMaxLen {
			track = string(runes[:models.TrackNameMaxLen])
		}

		group := ev.Group
		if group == "" {
			group = models.DefaultGroup
		}

		races = append(races, models.Event{
			Track:      track,
			Start:      start,
			QualiClose: start.Add(-models.QualiLeadTime),
			Group:      group,
		})
	}

	sort.Slice(races, func(i, j int) bool { return races[i].Start.Before(races[j].Start) })
	for i := range races {
		races[i].ID = i + 1
	}
	return races
}

// feedDateLayouts are the formats the feed has been observed to use.
var feedDateLayouts = []string{
	"02.01 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 Jan 2006",
	"2006-01-02",
	"02.01.2006",
}

// parseFeedDate handles the feed's date quirks: a "Today" marker (possibly
// wrapped in markup), stray HTML, and ordinal day suffixes.
func parseFeedDate(raw string, now time.Time) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}

	if strings.Contains(raw, "Today") || strings.Contains(raw, "<font") || strings.Contains(raw, "<b>") {
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), true
	}

	clean := htmlTagRe.ReplaceAllString(raw, "")
	clean = ordinalRe.ReplaceAllString(clean, "$1")
	clean = strings.TrimSpace(clean)

	for _, layout := range feedDateLayouts {
		if dt, err := time.Parse(layout, clean); err == nil {
			return dt, true
		}
	}

	// Month and day only: assume this year, or next year if already past.
	if dt, err := time.Parse("Jan 2", clean); err == nil {
		dt = dt.AddDate(now.Year(), 0, 0)
		if dt.Before(time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)) {
			dt = dt.AddDate(1, 0, 0)
		}
		return dt, true
	}

	return time.Time{}, false
}
