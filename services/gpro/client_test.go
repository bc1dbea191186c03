package gpro

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFetchCalendar(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/gb/backend/api/v2/Calendar", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Write([]byte(`{"events":[
			{"eventType":"R","idxReal":1,"dateEvent":"10.03 2026","trackName":"Monza","group":"Pro"},
			{"eventType":"R","idxReal":2,"dateEvent":"17.03 2026","trackName":"Spa","group":"Pro"}
		]}`))
	}))
	defer srv.Close()

	c := NewClientWithBase(srv.URL, "secret", "gb")
	events, err := c.FetchCalendar(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "Monza", events[0].Track)
}

func TestFetchCalendarEmptyFeedIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"events":[]}`))
	}))
	defer srv.Close()

	c := NewClientWithBase(srv.URL, "secret", "gb")
	_, err := c.FetchCalendar(context.Background())
	require.Error(t, err)
}

func TestQualiStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"races":[{"id":4,"qualifyOpen":true},{"id":5,"qualifyOpen":false}]}`))
	}))
	defer srv.Close()

	c := NewClientWithBase(srv.URL, "secret", "gb")
	open := c.QualiStatus(context.Background())
	require.True(t, open[4])
	require.False(t, open[5])
}

func TestQualiStatusErrorYieldsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClientWithBase(srv.URL, "secret", "gb")
	open := c.QualiStatus(context.Background())
	require.Empty(t, open)
}

func TestWeatherRetriesOnce(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"q1Weather":"Sunny","q1Temp":"22","q1Hum":"40","q2Weather":"Cloudy","q2Temp":"20","q2Hum":"55"}`))
	}))
	defer srv.Close()

	orig := weatherRetryDelay
	weatherRetryDelay = time.Millisecond
	defer func() { weatherRetryDelay = orig }()

	c := NewClientWithBase(srv.URL, "secret", "gb")
	w, err := c.Weather(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, "Sunny", w.Q1Weather)
}
