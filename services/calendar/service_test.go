package calendar

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"gridalert/internal/storage"
	"gridalert/models"
)

func testService(t *testing.T) *Service {
	t.Helper()
	store := storage.New()
	return New(store, filepath.Join(t.TempDir(), "race_calendar.json"), nil)
}

func mkEvent(track string, start time.Time) models.Event {
	return models.Event{
		Track:      track,
		Start:      start,
		QualiClose: start.Add(-models.QualiLeadTime),
		Group:      models.DefaultGroup,
	}
}

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	s := testService(t)
	s.Load()
	require.Zero(t, s.Len())
}

func TestLoadCorruptFileStartsEmpty(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := storage.NewWithFs(fs)
	require.NoError(t, afero.WriteFile(fs, "race_calendar.json", []byte("{not json"), 0o644))

	s := New(store, "race_calendar.json", nil)
	s.Load()
	require.Zero(t, s.Len())
}

func TestReplacePersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "race_calendar.json")
	store := storage.New()

	base := time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC)
	s := New(store, path, nil)
	require.NoError(t, s.Replace([]models.Event{
		mkEvent("Spa", base.AddDate(0, 0, 7)),
		mkEvent("Monza", base),
	}))

	reloaded := New(store, path, nil)
	reloaded.Load()
	events := reloaded.Snapshot()
	require.Len(t, events, 2)
	require.Equal(t, "Monza", events[0].Track)
	require.Equal(t, 1, events[0].ID)
	require.Equal(t, "Spa", events[1].Track)
	require.Equal(t, 2, events[1].ID)
	require.NotEmpty(t, events[0].UID)
	require.NotEqual(t, events[0].UID, events[1].UID)
}

func TestReplaceCarriesUIDsAcrossRenumbering(t *testing.T) {
	s := testService(t)
	base := time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC)

	require.NoError(t, s.Replace([]models.Event{
		mkEvent("Monza", base),
		mkEvent("Spa", base.AddDate(0, 0, 7)),
	}))
	before := s.Snapshot()

	// A race is inserted ahead of the existing two: every ID shifts, but the
	// UIDs of the surviving races must not change.
	require.NoError(t, s.Replace([]models.Event{
		mkEvent("Imola", base.AddDate(0, 0, -7)),
		mkEvent("Monza", base),
		mkEvent("Spa", base.AddDate(0, 0, 7)),
	}))
	after := s.Snapshot()
	require.Len(t, after, 3)

	require.Equal(t, "Imola", after[0].Track)
	require.Equal(t, 1, after[0].ID)
	require.Equal(t, before[0].UID, after[1].UID)
	require.Equal(t, 2, after[1].ID)
	require.Equal(t, before[1].UID, after[2].UID)
	require.Equal(t, 3, after[2].ID)
}

func TestReplaceCarriesWeatherByUID(t *testing.T) {
	s := testService(t)
	base := time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC)

	require.NoError(t, s.Replace([]models.Event{mkEvent("Monza", base)}))
	require.NoError(t, s.SetWeather(1, &models.RaceWeather{Q1Weather: "Sunny"}))

	require.NoError(t, s.Replace([]models.Event{
		mkEvent("Imola", base.AddDate(0, 0, -7)),
		mkEvent("Monza", base),
	}))

	ev, ok := s.Get(2)
	require.True(t, ok)
	require.NotNil(t, ev.Weather)
	require.Equal(t, "Sunny", ev.Weather.Q1Weather)
	require.True(t, s.HasWeather(2))
	require.False(t, s.HasWeather(1))
}

func TestClosingWithin(t *testing.T) {
	s := testService(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Replace([]models.Event{
		{Track: "past", Start: now.Add(-time.Hour), QualiClose: now.Add(-2 * time.Hour)},
		{Track: "soon", Start: now.Add(3 * time.Hour), QualiClose: now.Add(90 * time.Minute)},
		{Track: "later", Start: now.Add(26 * time.Hour), QualiClose: now.Add(24 * time.Hour)},
		{Track: "far", Start: now.Add(100 * time.Hour), QualiClose: now.Add(98 * time.Hour)},
	}))

	got := s.ClosingWithin(now, 48)
	require.Len(t, got, 2)
	require.Equal(t, "soon", got[0].Track)
	require.InDelta(t, 1.5, got[0].HoursLeft, 1e-9)
	require.Equal(t, "later", got[1].Track)
	require.InDelta(t, 24.0, got[1].HoursLeft, 1e-9)
}

func TestNextSkipsClosedDeadlines(t *testing.T) {
	s := testService(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Replace([]models.Event{
		{Track: "done", Start: now.Add(30 * time.Minute), QualiClose: now.Add(-time.Hour)},
		{Track: "open", Start: now.Add(48 * time.Hour), QualiClose: now.Add(46 * time.Hour)},
	}))

	ev, ok := s.Next(now)
	require.True(t, ok)
	require.Equal(t, "open", ev.Track)

	_, ok = s.Next(now.Add(47 * time.Hour))
	require.False(t, ok)
}

func TestSetWeatherUnknownRace(t *testing.T) {
	s := testService(t)
	require.Error(t, s.SetWeather(9, &models.RaceWeather{}))
}
