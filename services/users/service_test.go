package users

import (
	"encoding/json"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"gridalert/internal/storage"
	"gridalert/models"
)

// countingFs counts atomic replaces so tests can assert how many persists a
// call produced.
type countingFs struct {
	afero.Fs
	renames int
}

func (c *countingFs) Rename(oldname, newname string) error {
	c.renames++
	return c.Fs.Rename(oldname, newname)
}

func newTestService(t *testing.T) (*Service, *countingFs) {
	t.Helper()
	fs := &countingFs{Fs: afero.NewMemMapFs()}
	return New(storage.NewWithFs(fs), "users_data.json"), fs
}

func TestGetOrCreateDefaults(t *testing.T) {
	s, fs := newTestService(t)

	u := s.GetOrCreate(42)
	require.Equal(t, int64(42), u.ID)
	require.Nil(t, u.CompletedQuali)
	require.Len(t, u.Custom, models.MaxCustomSlots)
	require.Len(t, u.Notifications, len(models.NotificationCategories))
	for _, c := range models.NotificationCategories {
		require.True(t, u.Notifications[c], c)
	}
	require.Equal(t, models.DefaultLang, u.Lang)
	require.Equal(t, 1, fs.renames, "first contact persists exactly once")
}

func TestMigrationCoalescesIntoOneSave(t *testing.T) {
	fs := &countingFs{Fs: afero.NewMemMapFs()}

	// A record written by an older version: missing categories, no custom
	// slots, no language.
	old := map[string]*models.User{
		"7": {Notifications: map[string]bool{models.Notify48h: false}},
	}
	raw, err := json.Marshal(old)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "users_data.json", raw, 0o644))

	s := New(storage.NewWithFs(fs), "users_data.json")
	require.Zero(t, fs.renames, "loading must not write")

	u := s.GetOrCreate(7)
	require.Equal(t, 1, fs.renames, "all migrations coalesce into one persist")

	require.False(t, u.Notifications[models.Notify48h], "existing toggle survives migration")
	for _, c := range models.NotificationCategories[1:] {
		require.True(t, u.Notifications[c], c)
	}
	require.Len(t, u.Custom, models.MaxCustomSlots)
	require.Equal(t, models.DefaultLang, u.Lang)

	s.GetOrCreate(7)
	require.Equal(t, 1, fs.renames, "already migrated record does not persist again")
}

func TestToggleRoundTrip(t *testing.T) {
	fs := &countingFs{Fs: afero.NewMemMapFs()}
	store := storage.NewWithFs(fs)

	s := New(store, "users_data.json")
	on, err := s.Toggle(1, models.Notify2h)
	require.NoError(t, err)
	require.False(t, on)

	// A fresh service over the same file sees the durable state.
	s2 := New(store, "users_data.json")
	require.False(t, s2.Enabled(1, models.Notify2h))
	require.True(t, s2.Enabled(1, models.Notify48h))
}

func TestMarkDoneAndReset(t *testing.T) {
	s, _ := newTestService(t)

	require.NoError(t, s.MarkDone(5, 3))
	u, ok := s.Get(5)
	require.True(t, ok)
	require.NotNil(t, u.CompletedQuali)
	require.Equal(t, 3, *u.CompletedQuali)

	require.NoError(t, s.Reset(5))
	u, _ = s.Get(5)
	require.Nil(t, u.CompletedQuali)

	require.ErrorIs(t, s.Reset(99), ErrUnknownUser)
}

func TestSetCustomValidation(t *testing.T) {
	s, _ := newTestService(t)
	h := 2.5

	require.NoError(t, s.SetCustom(1, 0, &h))
	u, _ := s.Get(1)
	require.True(t, u.Custom[0].Enabled)
	require.Equal(t, 2.5, *u.Custom[0].HoursBefore)

	short := 0.1
	require.Error(t, s.SetCustom(1, 1, &short))
	long := 71.0
	require.Error(t, s.SetCustom(1, 1, &long))
	require.Error(t, s.SetCustom(1, 2, &h))
	require.Error(t, s.SetCustom(1, -1, &h))

	// Rejected inputs leave the slot untouched.
	u, _ = s.Get(1)
	require.False(t, u.Custom[1].Enabled)

	require.NoError(t, s.SetCustom(1, 0, nil))
	u, _ = s.Get(1)
	require.False(t, u.Custom[0].Enabled)
	require.Nil(t, u.Custom[0].HoursBefore)
}

func TestSnapshotsAreIndependentOfLiveRecord(t *testing.T) {
	s, _ := newTestService(t)

	before := s.GetOrCreate(1)
	_, err := s.Toggle(1, models.Notify48h)
	require.NoError(t, err)
	h := 2.0
	require.NoError(t, s.SetCustom(1, 0, &h))
	require.NoError(t, s.MarkDone(1, 5))

	// The earlier snapshot still shows the state at the time it was taken.
	require.True(t, before.Notifications[models.Notify48h])
	require.False(t, before.Custom[0].Enabled)
	require.Nil(t, before.CompletedQuali)

	// And writing into a snapshot never reaches the store.
	after, ok := s.Get(1)
	require.True(t, ok)
	after.Notifications[models.Notify24h] = false
	after.Custom[0] = models.CustomTrigger{}
	require.True(t, s.Enabled(1, models.Notify24h))
	fresh, _ := s.Get(1)
	require.True(t, fresh.Custom[0].Enabled)
}

func TestEnabledUnknownUserDefaultsOn(t *testing.T) {
	s, _ := newTestService(t)
	require.True(t, s.Enabled(404, models.NotifyLive))
}
