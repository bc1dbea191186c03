package notifier

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"gridalert/models"
)

// runTick performs one full scheduling pass and returns the delay before the
// next tick. The decide phase runs under the lock; delivery runs outside it;
// the per-job sent-state write-back re-acquires the lock briefly.
func (s *Service) runTick(ctx context.Context) (interval time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			interval, err = checkIntervalNormal, fmt.Errorf("tick panic: %v", r)
		}
	}()

	now := s.now()

	s.mu.Lock()
	jobs := s.checkQualiClosing(now)
	jobs = append(jobs, s.checkQualiOpen(ctx, now)...)
	jobs = append(jobs, s.checkRaceLive(now)...)
	jobs = append(jobs, s.checkCustom(now)...)

	live := make(map[string]bool)
	for _, ev := range s.calendar.Snapshot() {
		live[ev.UID] = true
	}
	pruned := s.history.Prune(now, live)

	interval = s.nextTickInterval(now)
	s.mu.Unlock()

	s.statusMu.Lock()
	s.lastTickAt = now
	s.lastJobs = len(jobs)
	s.statusMu.Unlock()

	// Delivery is slow (many recipients) and must not block the next tick's
	// decide phase.
	s.dispatch(ctx, jobs)

	// Persist whenever memory diverged from the durable file: new sends, or
	// prune removals that would otherwise resurrect on restart.
	if len(jobs) > 0 || pruned > 0 {
		s.mu.Lock()
		s.history.Persist()
		s.mu.Unlock()
	}
	return interval, nil
}

// checkQualiClosing emits the fixed-offset reminders (48h/24h/2h/10min)
// before each qualification deadline. Callers hold s.mu.
func (s *Service) checkQualiClosing(now time.Time) []models.NotificationJob {
	var jobs []models.NotificationJob

	for _, ev := range s.calendar.ClosingWithin(now, closingLookaheadHours) {
		for _, w := range notificationWindows {
			if math.Abs(ev.HoursLeft-w.hoursBefore) > w.tolerance.Hours() {
				continue
			}
			key := globalKey(ev.UID, w.label)
			if s.history.Sent(key) {
				continue
			}
			jobs = append(jobs, models.NotificationJob{
				Kind:  models.JobQualiClosing,
				Event: ev,
				Label: w.label,
				Key:   key,
			})
		}
	}
	return jobs
}

// checkQualiOpen handles the probe-confirmed transition "the next race's
// qualification window opened", which happens a few hours after the previous
// race. While a race sits inside the probe window its state is asked from the
// upstream authority (rate limited); once the window has passed, the
// transition is assumed within a small tolerance so upstream silence never
// blocks delivery. Replay and results notifications for the previous race
// piggy-back on the same moment. Callers hold s.mu.
func (s *Service) checkQualiOpen(ctx context.Context, now time.Time) []models.NotificationJob {
	events := s.calendar.Snapshot()
	byID := make(map[int]models.Event, len(events))
	for _, ev := range events {
		byID[ev.ID] = ev
	}

	type candidate struct {
		race models.Event
		prev models.Event
	}
	var inWindow, fallback []candidate

	for _, ev := range events {
		if ev.ID == 1 {
			continue // no previous race to open after
		}
		if s.history.Sent(globalKey(ev.UID, models.NotifyOpens)) {
			continue
		}
		prev, ok := byID[ev.ID-1]
		if !ok {
			continue
		}

		sincePrev := now.Sub(prev.Start)
		switch {
		case sincePrev >= probeWindowStart && sincePrev <= probeWindowEnd:
			inWindow = append(inWindow, candidate{race: ev, prev: prev})
		case sincePrev > probeWindowEnd && sincePrev-probeWindowEnd <= fallbackTolerance:
			fallback = append(fallback, candidate{race: ev, prev: prev})
		}
	}

	confirmed := map[int]bool{}
	if len(inWindow) > 0 && s.probeLimiter.Allow() {
		log.Printf("[notifier] probing quali status (%d races in window)", len(inWindow))
		confirmed = s.prober.QualiStatus(ctx)
	}

	var jobs []models.NotificationJob
	for _, c := range inWindow {
		if !confirmed[c.race.ID] {
			continue
		}
		log.Printf("[notifier] upstream confirmed: race %d quali opened", c.race.ID)
		jobs = append(jobs, s.qualiOpenedJobs(ctx, c.race, c.prev)...)
	}
	for _, c := range fallback {
		log.Printf("[notifier] fallback: treating race %d quali as open (no upstream confirmation)", c.race.ID)
		jobs = append(jobs, s.qualiOpenedJobs(ctx, c.race, c.prev)...)
	}
	return jobs
}

// qualiOpenedJobs builds the opens_soon job for a race plus the replay and
// results follow-ups for its predecessor, fetching the race weather first so
// the announcement can carry it.
func (s *Service) qualiOpenedJobs(ctx context.Context, race, prev models.Event) []models.NotificationJob {
	if !s.calendar.HasWeather(race.ID) {
		if w, err := s.prober.Weather(ctx, race.ID); err != nil {
			log.Printf("[notifier] weather fetch failed for race %d: %v", race.ID, err)
		} else if err := s.calendar.SetWeather(race.ID, w); err != nil {
			log.Printf("[notifier] attach weather to race %d: %v", race.ID, err)
		} else {
			race.Weather = w
		}
	}

	jobs := []models.NotificationJob{{
		Kind:  models.JobQualiOpens,
		Event: race,
		Label: models.NotifyOpens,
		Key:   globalKey(race.UID, models.NotifyOpens),
	}}

	if key := globalKey(prev.UID, models.NotifyReplay); !s.history.Sent(key) {
		jobs = append(jobs, models.NotificationJob{
			Kind:  models.JobRaceReplay,
			Event: prev,
			Label: models.NotifyReplay,
			Key:   key,
		})
	}
	if key := globalKey(prev.UID, models.NotifyResults); !s.history.Sent(key) {
		jobs = append(jobs, models.NotificationJob{
			Kind:  models.JobRaceResults,
			Event: prev,
			Label: models.NotifyResults,
			Key:   key,
		})
	}
	return jobs
}

// checkRaceLive emits the race-start notification inside a tight window
// opening slightly before the start so the message can be pre-staged.
// Callers hold s.mu.
func (s *Service) checkRaceLive(now time.Time) []models.NotificationJob {
	var jobs []models.NotificationJob
	for _, ev := range s.calendar.Snapshot() {
		sinceStart := now.Sub(ev.Start)
		if sinceStart < -liveBeforeStart || sinceStart > liveAfterStart {
			continue
		}
		key := globalKey(ev.UID, models.NotifyLive)
		if s.history.Sent(key) {
			continue
		}
		jobs = append(jobs, models.NotificationJob{
			Kind:  models.JobRaceLive,
			Event: ev,
			Label: models.NotifyLive,
			Key:   key,
		})
	}
	return jobs
}

// checkCustom evaluates every user's custom offsets against every race
// closing within the custom lookahead. Keys include the user id: one user's
// delivery never suppresses another's. Callers hold s.mu.
func (s *Service) checkCustom(now time.Time) []models.NotificationJob {
	closing := s.calendar.ClosingWithin(now, customLookaheadHours)
	if len(closing) == 0 {
		return nil
	}

	var jobs []models.NotificationJob
	for _, u := range s.users.List() {
		for slot, trigger := range u.Custom {
			if !trigger.Enabled || trigger.HoursBefore == nil {
				continue
			}
			for _, ev := range closing {
				if math.Abs(ev.HoursLeft-*trigger.HoursBefore) > customTolerance.Hours() {
					continue
				}
				label := fmt.Sprintf("custom_%d", slot+1)
				key := customKey(ev.UID, label, u.ID)
				if s.history.Sent(key) {
					continue
				}
				jobs = append(jobs, models.NotificationJob{
					Kind:   models.JobCustom,
					Event:  ev,
					Label:  label,
					Key:    key,
					UserID: u.ID,
				})
			}
		}
	}
	return jobs
}

// nextTickInterval returns the fast interval while any race start is near
// (just ahead, or just passed within the live window), bounding worst-case
// latency around the most time-sensitive moment. Callers hold s.mu.
func (s *Service) nextTickInterval(now time.Time) time.Duration {
	for _, ev := range s.calendar.Snapshot() {
		untilStart := ev.Start.Sub(now)
		if untilStart >= -liveAfterStart && untilStart <= raceProximityThreshold {
			return checkIntervalFast
		}
	}
	return checkIntervalNormal
}
