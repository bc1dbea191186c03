// Package notifier is the notification scheduling core: a single background
// loop that, each tick, evaluates every race against every active trigger,
// decides which (race, trigger) pairs are newly due, hands the resulting jobs
// to the delivery dispatcher, and records them in the dedup history so nothing
// is ever sent twice.
//
// Pipeline per tick: decide (under lock) → deliver (outside lock) → mark sent
// (re-acquiring the lock per job) → persist history.
package notifier

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"gridalert/models"
	"gridalert/services/calendar"
	"gridalert/services/users"
)

// Fixed reminder windows before the qualification deadline. Tolerances widen
// with distance: a reminder two days out can be a few minutes late, one ten
// minutes out cannot.
type window struct {
	hoursBefore float64
	tolerance   time.Duration
	label       string
}

var notificationWindows = []window{
	{48, 6 * time.Minute, models.Notify48h},
	{24, 6 * time.Minute, models.Notify24h},
	{2, 5 * time.Minute, models.Notify2h},
	{10.0 / 60.0, 2 * time.Minute, models.Notify10min},
}

const (
	// Tick cadence: normal most of the time, fast when a race start is close
	// so the live notification lands on time.
	checkIntervalNormal = 5 * time.Minute
	checkIntervalFast   = time.Minute

	// raceProximityThreshold switches the loop to fast ticks when a race
	// starts within this many minutes.
	raceProximityThreshold = 10 * time.Minute

	// The live notification window around the race start.
	liveBeforeStart = time.Minute
	liveAfterStart  = 5 * time.Minute

	// Dedup history entries older than this are pruned.
	historyRetention = 30 * 24 * time.Hour

	// Qualification for the next race opens a few hours after the previous
	// race starts. Probing the upstream authority is only worthwhile inside
	// this window; past its end we stop waiting and fall back.
	probeWindowStart = 2 * time.Hour
	probeWindowEnd   = 3*time.Hour + 30*time.Minute

	// probeInterval caps upstream status probes, enforced by a rate limiter.
	probeInterval = 10 * time.Minute

	// fallbackTolerance bounds how long past probeWindowEnd the fallback
	// confirmation may still fire.
	fallbackTolerance = 15 * time.Minute

	// customTolerance is the window around a user-chosen offset.
	customTolerance = 5 * time.Minute

	// Lookahead horizons for the closing-soon scans. The custom horizon
	// covers the maximum custom offset plus slack.
	closingLookaheadHours = 48.0
	customLookaheadHours  = 72.0

	// maxDeliveryWorkers bounds the broadcast fan-out concurrency.
	maxDeliveryWorkers = 8
)

// Message is an outbound notification payload: text plus optional inline
// buttons. Its structure is opaque to the scheduling core.
type Message struct {
	Text    string
	Buttons []Button
}

// Button is one inline action attached to a message.
type Button struct {
	Text     string
	Callback string
}

// Sender delivers a message to one user. Implementations own their timeout;
// a returned error affects only that user's delivery.
type Sender interface {
	Send(ctx context.Context, userID int64, msg Message) error
}

// StatusProber confirms qualification-window transitions and fetches race
// weather from the upstream authority.
type StatusProber interface {
	QualiStatus(ctx context.Context) map[int]bool
	Weather(ctx context.Context, raceID int) (*models.RaceWeather, error)
}

// Status reports the scheduler's runtime state.
type Status struct {
	Running      bool      `json:"running"`
	LastTickAt   time.Time `json:"lastTickAt"`
	NextInterval string    `json:"nextInterval"`
	LastJobs     int       `json:"lastJobs"`
	SentTotal    int64     `json:"sentTotal"`
	FailedTotal  int64     `json:"failedTotal"`
	HistorySize  int       `json:"historySize"`
	LastError    string    `json:"lastError,omitempty"`
}

// Service is the notification scheduler and dedup engine.
type Service struct {
	calendar *calendar.Service
	users    *users.Service
	prober   StatusProber
	sender   Sender

	// mu guards the decide phase and the dedup history so two ticks can
	// never double-evaluate the same window. It is released before the slow
	// delivery phase.
	mu      sync.Mutex
	history *historyStore

	probeLimiter *rate.Limiter

	// admins receive failure alerts; alerted edge-triggers them so a failure
	// streak produces one message, not one per tick. Both are touched only by
	// the loop goroutine.
	admins  []int64
	alerted bool

	runMu   sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	statusMu     sync.RWMutex
	lastTickAt   time.Time
	nextInterval time.Duration
	lastJobs     int
	sentTotal    int64
	failedTotal  int64
	lastError    string

	// now is swappable for tests.
	now func() time.Time
}

// New creates the scheduler. history persists the dedup map across restarts.
func New(cal *calendar.Service, us *users.Service, prober StatusProber, sender Sender, history *historyStore) *Service {
	return &Service{
		calendar:     cal,
		users:        us,
		prober:       prober,
		sender:       sender,
		history:      history,
		probeLimiter: rate.NewLimiter(rate.Every(probeInterval), 1),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetAdmins registers recipients for scheduler failure alerts. Call before
// Start.
func (s *Service) SetAdmins(ids []int64) {
	s.admins = ids
}

// reportTickError alerts the admins when the loop enters a failing state.
// One alert per failure streak; the next clean tick re-arms it.
func (s *Service) reportTickError(ctx context.Context, err error) {
	if err == nil {
		s.alerted = false
		return
	}
	if s.alerted {
		return
	}
	s.alerted = true
	for _, id := range s.admins {
		msg := Message{Text: "⚠️ Notification check failed: " + err.Error()}
		if sendErr := s.sender.Send(ctx, id, msg); sendErr != nil {
			log.Printf("[notifier] admin alert to %d failed: %v", id, sendErr)
		}
	}
}

// Start launches the scheduling loop.
func (s *Service) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.wg.Add(1)
	go s.loop()
	log.Printf("[notifier] scheduler started (normal %s, fast %s near race start)", checkIntervalNormal, checkIntervalFast)
}

// Stop halts the loop, waiting for in-flight delivery until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if !s.running {
		return
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Printf("[notifier] scheduler stopped")
	case <-ctx.Done():
		log.Printf("[notifier] scheduler stop timed out")
	}
	s.running = false
}

// loop runs ticks forever with an adaptively computed sleep. A failed tick is
// logged and the loop continues at the normal interval; nothing inside a tick
// can terminate the loop.
func (s *Service) loop() {
	defer s.wg.Done()

	for {
		interval, err := s.runTick(s.ctx)
		if err != nil {
			log.Printf("[notifier] tick error: %v", err)
			interval = checkIntervalNormal
		}
		s.reportTickError(s.ctx, err)

		s.statusMu.Lock()
		s.nextInterval = interval
		if err != nil {
			s.lastError = err.Error()
		} else {
			s.lastError = ""
		}
		s.statusMu.Unlock()

		timer := time.NewTimer(interval)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// GetStatus returns the scheduler status.
func (s *Service) GetStatus() Status {
	s.statusMu.RLock()
	st := Status{
		LastTickAt:   s.lastTickAt,
		NextInterval: s.nextInterval.String(),
		LastJobs:     s.lastJobs,
		SentTotal:    s.sentTotal,
		FailedTotal:  s.failedTotal,
		LastError:    s.lastError,
	}
	s.statusMu.RUnlock()

	s.runMu.Lock()
	st.Running = s.running
	s.runMu.Unlock()

	s.mu.Lock()
	st.HistorySize = s.history.Len()
	s.mu.Unlock()
	return st
}
