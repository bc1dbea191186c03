package notifier

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"gridalert/internal/storage"
)

func TestHistoryKeys(t *testing.T) {
	require.Equal(t, "abc|48h", globalKey("abc", "48h"))
	require.Equal(t, "abc|custom_1|42", customKey("abc", "custom_1", 42))
}

func TestHistoryRoundTrip(t *testing.T) {
	store := storage.NewWithFs(afero.NewMemMapFs())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	h := NewHistory(store, "notify_history.json")
	require.False(t, h.Sent("a|48h"))
	h.MarkSent("a|48h", now)
	require.True(t, h.Sent("a|48h"))
	h.Persist()

	h2 := NewHistory(store, "notify_history.json")
	require.True(t, h2.Sent("a|48h"))
	require.Equal(t, 1, h2.Len())
}

func TestHistoryCorruptFileStartsEmpty(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "notify_history.json", []byte("{oops"), 0o644))

	h := NewHistory(storage.NewWithFs(fs), "notify_history.json")
	require.Zero(t, h.Len())
}

func TestHistoryPrune(t *testing.T) {
	store := storage.NewWithFs(afero.NewMemMapFs())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	h := NewHistory(store, "notify_history.json")
	h.MarkSent("live|48h", now.Add(-time.Hour))
	h.MarkSent("live|24h", now.Add(-historyRetention-time.Hour))
	h.MarkSent("gone|48h", now.Add(-time.Hour))

	require.Equal(t, 2, h.Prune(now, map[string]bool{"live": true}))
	require.True(t, h.Sent("live|48h"))
	require.False(t, h.Sent("live|24h"), "past retention")
	require.False(t, h.Sent("gone|48h"), "race left the calendar")
}

func TestHistoryPruneEmptyCalendarKeepsUIDs(t *testing.T) {
	store := storage.NewWithFs(afero.NewMemMapFs())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	h := NewHistory(store, "notify_history.json")
	h.MarkSent("a|48h", now.Add(-time.Hour))

	// A transiently empty calendar (failed refresh) must not wipe the history.
	require.Zero(t, h.Prune(now, map[string]bool{}))
	require.True(t, h.Sent("a|48h"))
}
