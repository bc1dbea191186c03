package notifier

import (
	"context"
	"log"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"

	"gridalert/models"
)

// dispatch fans each due job out to its audience and records the sent-state.
// A job is marked sent after the full audience has been attempted, regardless
// of individual per-user failures: one blocked recipient must never cause a
// wholesale retry to everyone else.
func (s *Service) dispatch(ctx context.Context, jobs []models.NotificationJob) {
	for _, job := range jobs {
		if job.Broadcast() {
			s.deliverBroadcast(ctx, job)
		} else {
			s.deliverSingle(ctx, job)
		}

		s.mu.Lock()
		s.history.MarkSent(job.Key, s.now())
		s.mu.Unlock()
	}
}

// deliverBroadcast sends a job to every user with its category enabled.
// Deliveries run on a bounded worker pool; each failure is logged and
// isolated to its user.
func (s *Service) deliverBroadcast(ctx context.Context, job models.NotificationJob) {
	audience := s.users.List()
	log.Printf("[notifier] sending %s for race %d", job.Label, job.Event.ID)

	var sent, failed int64
	p := pool.New().WithMaxGoroutines(maxDeliveryWorkers)
	for _, u := range audience {
		if !u.NotificationEnabled(job.Label) {
			continue
		}
		if suppressedForUser(job, u) {
			continue
		}
		u := u
		p.Go(func() {
			msg := s.buildMessage(job, u, false)
			if err := s.sender.Send(ctx, u.ID, msg); err != nil {
				log.Printf("[notifier] send %s to user %d failed: %v", job.Label, u.ID, err)
				atomic.AddInt64(&failed, 1)
				return
			}
			atomic.AddInt64(&sent, 1)
		})
	}
	p.Wait()

	log.Printf("[notifier] sent %s for race %d to %d/%d users", job.Label, job.Event.ID, sent, len(audience))
	s.statusMu.Lock()
	s.sentTotal += sent
	s.failedTotal += failed
	s.statusMu.Unlock()
}

// deliverSingle sends a custom-trigger job to its one target user.
func (s *Service) deliverSingle(ctx context.Context, job models.NotificationJob) {
	u, ok := s.users.Get(job.UserID)
	if !ok {
		log.Printf("[notifier] custom job %s for unknown user %d dropped", job.Label, job.UserID)
		return
	}
	if suppressedForUser(job, u) {
		return
	}

	msg := s.buildMessage(job, u, false)
	if err := s.sender.Send(ctx, u.ID, msg); err != nil {
		log.Printf("[notifier] send custom %s to user %d failed: %v", job.Label, u.ID, err)
		s.statusMu.Lock()
		s.failedTotal++
		s.statusMu.Unlock()
		return
	}
	log.Printf("[notifier] sent custom %s for race %d to user %d", job.Label, job.Event.ID, u.ID)
	s.statusMu.Lock()
	s.sentTotal++
	s.statusMu.Unlock()
}

// suppressedForUser reports whether an automatic qualification reminder is
// skipped because the user already marked this race done. Live, replay, and
// results notifications are unaffected by the done marker.
func suppressedForUser(job models.NotificationJob, u models.User) bool {
	switch job.Kind {
	case models.JobQualiClosing, models.JobQualiOpens, models.JobCustom:
		return u.CompletedQuali != nil && *u.CompletedQuali == job.Event.ID
	case models.JobRaceLive, models.JobRaceReplay, models.JobRaceResults:
		return false
	}
	return false
}
