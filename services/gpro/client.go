// Package gpro talks to the race-manager backend API: the season calendar
// feed, the qualification status endpoint, and the per-race weather forecast.
package gpro

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	retry "github.com/avast/retry-go/v4"

	"gridalert/models"
)

const (
	userAgent = "GridAlert/1.0"

	// probeTimeout bounds a single status probe; silence past it counts as
	// "no confirmation", never an error.
	probeTimeout = 10 * time.Second
)

// weatherRetryDelay is the pause before the single weather retry. Variable so
// tests can shorten it.
var weatherRetryDelay = 5 * time.Second

// Client is an authenticated HTTP client for the upstream API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	lang       string
}

// NewClient creates an upstream API client. lang selects the language segment
// of upstream URLs ("gb", "de", ...).
func NewClient(token, lang string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://gpro.net",
		token:      token,
		lang:       lang,
	}
}

// NewClientWithBase creates a client against a custom base URL. Used by tests.
func NewClientWithBase(baseURL, token, lang string) *Client {
	c := NewClient(token, lang)
	c.baseURL = baseURL
	return c
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request %s: status %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// calendarResponse is the upstream calendar feed shape.
type calendarResponse struct {
	Events              []feedEvent `json:"events"`
	NextSeasonPublished bool        `json:"nextSeasonPublished"`
}

type feedEvent struct {
	EventType string `json:"eventType"`
	Idx       int    `json:"idx"`
	IdxReal   int    `json:"idxReal"`
	DateEvent string `json:"dateEvent"`
	TrackName string `json:"trackName"`
	Group     string `json:"group"`
}

// FetchCalendar downloads and parses the season calendar. The returned events
// are renumbered 1..N by start time; UIDs are left empty for the calendar
// store to assign. Returns an error (never a partial slice) when the feed is
// unreachable or contains no valid race rows.
func (c *Client) FetchCalendar(ctx context.Context) ([]models.Event, error) {
	var feed calendarResponse
	path := fmt.Sprintf("/%s/backend/api/v2/Calendar", c.lang)
	if err := c.get(ctx, path, &feed); err != nil {
		return nil, err
	}

	events := ParseFeedEvents(feed.Events, time.Now().UTC())
	if len(events) == 0 {
		return nil, fmt.Errorf("calendar feed contained no valid race events")
	}
	return events, nil
}

// qualiStatusResponse is the upstream qualification status shape.
type qualiStatusResponse struct {
	Races []struct {
		ID          int  `json:"id"`
		QualifyOpen bool `json:"qualifyOpen"`
	} `json:"races"`
}

// QualiStatus probes the upstream authority once and returns the set of race
// ids whose qualification window it confirms open. Any error, timeout, or
// non-200 yields an empty map; the caller treats silence as "not confirmed".
func (c *Client) QualiStatus(ctx context.Context) map[int]bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var status qualiStatusResponse
	path := fmt.Sprintf("/%s/backend/api/v2/Qualify/Status", c.lang)
	if err := c.get(ctx, path, &status); err != nil {
		log.Printf("[gpro] quali status probe failed: %v", err)
		return map[int]bool{}
	}

	open := make(map[int]bool, len(status.Races))
	for _, r := range status.Races {
		if r.QualifyOpen {
			open[r.ID] = true
		}
	}
	return open
}

// weatherResponse is the upstream practice/weather payload.
type weatherResponse struct {
	Q1Weather string `json:"q1Weather"`
	Q1Temp    string `json:"q1Temp"`
	Q1Hum     string `json:"q1Hum"`
	Q2Weather string `json:"q2Weather"`
	Q2Temp    string `json:"q2Temp"`
	Q2Hum     string `json:"q2Hum"`

	Quarters []struct {
		TempLow  string `json:"tempLow"`
		TempHigh string `json:"tempHigh"`
		HumLow   string `json:"humLow"`
		HumHigh  string `json:"humHigh"`
		RainLow  string `json:"rainPLow"`
		RainHigh string `json:"rainPHigh"`
	} `json:"raceQuarters"`
}

// Weather fetches the forecast for a race, retrying once after a short delay
// before giving up. A nil result with nil error never happens; callers treat
// an error as "no forecast available".
func (c *Client) Weather(ctx context.Context, raceID int) (*models.RaceWeather, error) {
	var w weatherResponse
	path := fmt.Sprintf("/%s/backend/api/v2/Practice?raceId=%d", c.lang, raceID)

	err := retry.Do(
		func() error { return c.get(ctx, path, &w) },
		retry.Attempts(2),
		retry.Delay(weatherRetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("fetch weather for race %d: %w", raceID, err)
	}

	weather := &models.RaceWeather{
		Q1Weather: w.Q1Weather,
		Q1Temp:    w.Q1Temp,
		Q1Hum:     w.Q1Hum,
		Q2Weather: w.Q2Weather,
		Q2Temp:    w.Q2Temp,
		Q2Hum:     w.Q2Hum,
	}
	for _, q := range w.Quarters {
		weather.Quarters = append(weather.Quarters, models.WeatherQuarter{
			TempLow:  q.TempLow,
			TempHigh: q.TempHigh,
			HumLow:   q.HumLow,
			HumHigh:  q.HumHigh,
			RainLow:  q.RainLow,
			RainHigh: q.RainHigh,
		})
	}
	return weather, nil
}
