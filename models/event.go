package models

import "time"

// DefaultGroup is the category assigned to events whose upstream record
// carries no group label.
const DefaultGroup = "Pro"

// TrackNameMaxLen caps the display name of a track as stored in the calendar.
const TrackNameMaxLen = 30

// QualiLeadTime is how long before the race start the qualification closes.
const QualiLeadTime = 90 * time.Minute

// RaceWeather holds the forecast attached to a race once its qualification
// window opens. Fields mirror the upstream practice API payload; Quarters
// cover the four half-hour segments of the race.
type RaceWeather struct {
	Q1Weather string           `json:"q1Weather"`
	Q1Temp    string           `json:"q1Temp"`
	Q1Hum     string           `json:"q1Hum"`
	Q2Weather string           `json:"q2Weather"`
	Q2Temp    string           `json:"q2Temp"`
	Q2Hum     string           `json:"q2Hum"`
	Quarters  []WeatherQuarter `json:"quarters,omitempty"`
}

// WeatherQuarter is the forecast range for one half-hour race segment.
type WeatherQuarter struct {
	TempLow  string `json:"tempLow"`
	TempHigh string `json:"tempHigh"`
	HumLow   string `json:"humLow"`
	HumHigh  string `json:"humHigh"`
	RainLow  string `json:"rainPLow"`
	RainHigh string `json:"rainPHigh"`
}

// Event is one scheduled race in the season calendar.
//
// ID is the sequential race number (1..N by start time) and is re-assigned on
// every calendar refresh, so it is only meaningful within one calendar
// generation. UID is minted once at first ingestion and carried across
// refreshes; anything that must survive a refresh (notification dedup keys)
// uses UID, never ID.
type Event struct {
	ID         int          `json:"-"`
	UID        string       `json:"uid"`
	Track      string       `json:"track"`
	Start      time.Time    `json:"date"`
	QualiClose time.Time    `json:"qualiClose"`
	Group      string       `json:"group"`
	Weather    *RaceWeather `json:"weather,omitempty"`

	// HoursLeft is a computed annotation (time until QualiClose, in
	// fractional hours) set by calendar queries. Not persisted.
	HoursLeft float64 `json:"-"`
}
