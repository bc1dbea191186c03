// Package calendar holds the season's race calendar: the in-memory working
// set, its durable JSON file, and a background worker that refreshes it from
// the upstream feed.
package calendar

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"gridalert/internal/storage"
	"gridalert/models"
)

// FeedClient fetches a freshly parsed season calendar from upstream.
type FeedClient interface {
	FetchCalendar(ctx context.Context) ([]models.Event, error)
}

// storedEvent is the on-disk shape of one race, keyed by its sequential id.
type storedEvent struct {
	UID        string              `json:"uid"`
	Track      string              `json:"track"`
	Start      time.Time           `json:"date"`
	QualiClose time.Time           `json:"quali_close"`
	Group      string              `json:"group"`
	Weather    *models.RaceWeather `json:"weather,omitempty"`
}

// Status reports the state of the background refresh worker.
type Status struct {
	Running       bool      `json:"running"`
	Races         int       `json:"races"`
	LastRefreshAt time.Time `json:"lastRefreshAt"`
	NextRefreshAt time.Time `json:"nextRefreshAt"`
	LastError     string    `json:"lastError,omitempty"`
}

// Service is the event calendar store.
type Service struct {
	mu     sync.RWMutex
	events []models.Event // sorted by start time, IDs 1..N
	store  *storage.Store
	path   string
	feed   FeedClient

	statusMu      sync.RWMutex
	running       bool
	lastRefreshAt time.Time
	nextRefreshAt time.Time
	lastError     string

	stopCh     chan struct{}
	refreshNow chan struct{}
}

// New creates a calendar service persisting to path. feed may be nil when the
// background refresh worker is not used.
func New(store *storage.Store, path string, feed FeedClient) *Service {
	return &Service{
		store: store,
		path:  path,
		feed:  feed,
	}
}

// Load reads the durable calendar file. A missing file yields an empty
// calendar; a corrupt file is logged and likewise yields an empty calendar.
// Load never fails the caller.
func (s *Service) Load() {
	var raw map[string]storedEvent
	found, err := s.store.Load(s.path, &raw)
	if err != nil {
		log.Printf("[calendar] cache load error: %v", err)
		return
	}
	if !found {
		log.Printf("[calendar] no cache file, starting empty")
		return
	}

	events := make([]models.Event, 0, len(raw))
	for idStr, se := range raw {
		id, err := strconv.Atoi(idStr)
		if err != nil {
			log.Printf("[calendar] skipping cache entry with bad id %q", idStr)
			continue
		}
		events = append(events, models.Event{
			ID:         id,
			UID:        se.UID,
			Track:      se.Track,
			Start:      se.Start,
			QualiClose: se.QualiClose,
			Group:      se.Group,
			Weather:    se.Weather,
		})
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })

	s.mu.Lock()
	s.events = events
	s.mu.Unlock()
	log.Printf("[calendar] loaded %d races from cache", len(events))
}

// Replace atomically persists a complete new calendar and swaps the in-memory
// working set. Stable UIDs are carried over from existing races with the same
// start time; new races get a freshly minted UID. Readers never observe a
// partially replaced calendar.
func (s *Service) Replace(events []models.Event) error {
	sorted := make([]models.Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	s.mu.Lock()
	defer s.mu.Unlock()

	uidByStart := make(map[time.Time]string, len(s.events))
	weatherByUID := make(map[string]*models.RaceWeather)
	for _, old := range s.events {
		uidByStart[old.Start] = old.UID
		if old.Weather != nil {
			weatherByUID[old.UID] = old.Weather
		}
	}

	for i := range sorted {
		sorted[i].ID = i + 1
		if sorted[i].UID == "" {
			if uid, ok := uidByStart[sorted[i].Start]; ok {
				sorted[i].UID = uid
			} else {
				sorted[i].UID = uuid.NewString()
			}
		}
		if sorted[i].Weather == nil {
			sorted[i].Weather = weatherByUID[sorted[i].UID]
		}
	}

	raw := make(map[string]storedEvent, len(sorted))
	for _, ev := range sorted {
		raw[strconv.Itoa(ev.ID)] = storedEvent{
			UID:        ev.UID,
			Track:      ev.Track,
			Start:      ev.Start,
			QualiClose: ev.QualiClose,
			Group:      ev.Group,
			Weather:    ev.Weather,
		}
	}
	if err := s.store.Save(s.path, raw); err != nil {
		return fmt.Errorf("persist calendar: %w", err)
	}

	s.events = sorted
	return nil
}

// Get returns the race with the given sequential id.
func (s *Service) Get(id int) (models.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ev := range s.events {
		if ev.ID == id {
			return ev, true
		}
	}
	return models.Event{}, false
}

// Snapshot returns a copy of the full calendar, sorted by start time.
func (s *Service) Snapshot() []models.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Len returns the number of races in the calendar.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// ClosingWithin returns races whose qualification deadline is strictly in the
// future and at most hours away, sorted by time to deadline, each annotated
// with the unrounded HoursLeft quotient.
func (s *Service) ClosingWithin(now time.Time, hours float64) []models.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var upcoming []models.Event
	for _, ev := range s.events {
		left := ev.QualiClose.Sub(now).Seconds() / 3600
		if left > 0 && left <= hours {
			ev.HoursLeft = left
			upcoming = append(upcoming, ev)
		}
	}
	sort.Slice(upcoming, func(i, j int) bool { return upcoming[i].HoursLeft < upcoming[j].HoursLeft })
	return upcoming
}

// Next returns the first race whose qualification deadline is still ahead.
func (s *Service) Next(now time.Time) (models.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ev := range s.events {
		if ev.QualiClose.After(now) {
			left := ev.QualiClose.Sub(now).Seconds() / 3600
			ev.HoursLeft = left
			return ev, true
		}
	}
	return models.Event{}, false
}

// SetWeather attaches a forecast to a race and persists the calendar.
func (s *Service) SetWeather(id int, w *models.RaceWeather) error {
	s.mu.Lock()
	found := false
	for i := range s.events {
		if s.events[i].ID == id {
			s.events[i].Weather = w
			found = true
			break
		}
	}
	events := make([]models.Event, len(s.events))
	copy(events, s.events)
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("race %d not in calendar", id)
	}
	return s.Replace(events)
}

// HasWeather reports whether a forecast is already attached to a race.
func (s *Service) HasWeather(id int) bool {
	ev, ok := s.Get(id)
	return ok && ev.Weather != nil
}

// StartBackgroundRefresh begins periodic upstream refresh of the calendar.
func (s *Service) StartBackgroundRefresh(interval time.Duration) {
	if s.feed == nil {
		log.Printf("[calendar] no feed client, background refresh disabled")
		return
	}

	s.stopCh = make(chan struct{})
	s.refreshNow = make(chan struct{}, 1)

	s.statusMu.Lock()
	s.running = true
	s.statusMu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			s.statusMu.Lock()
			s.nextRefreshAt = time.Now().Add(interval)
			s.statusMu.Unlock()

			select {
			case <-ticker.C:
				s.doRefresh()
			case <-s.refreshNow:
				s.doRefresh()
				ticker.Reset(interval)
			case <-s.stopCh:
				s.statusMu.Lock()
				s.running = false
				s.statusMu.Unlock()
				log.Printf("[calendar] background refresh stopped")
				return
			}
		}
	}()
}

// Refresh triggers an immediate upstream refresh. Non-blocking.
func (s *Service) Refresh() {
	if s.refreshNow == nil {
		return
	}
	select {
	case s.refreshNow <- struct{}{}:
	default:
		// refresh already pending
	}
}

// Stop halts the background refresh worker.
func (s *Service) Stop() {
	if s.stopCh != nil {
		close(s.stopCh)
	}
}

// GetStatus returns the worker status.
func (s *Service) GetStatus() Status {
	s.statusMu.RLock()
	st := Status{
		Running:       s.running,
		LastRefreshAt: s.lastRefreshAt,
		NextRefreshAt: s.nextRefreshAt,
		LastError:     s.lastError,
	}
	s.statusMu.RUnlock()
	st.Races = s.Len()
	return st
}

func (s *Service) doRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	log.Printf("[calendar] refreshing from upstream feed")
	events, err := s.feed.FetchCalendar(ctx)
	if err == nil {
		err = s.Replace(events)
	}

	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if err != nil {
		s.lastError = err.Error()
		log.Printf("[calendar] refresh failed: %v", err)
		return
	}
	s.lastError = ""
	s.lastRefreshAt = time.Now()
	log.Printf("[calendar] refresh complete: %d races", len(events))
}
