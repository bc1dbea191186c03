package notifier

import (
	"context"
	"fmt"

	"gridalert/models"
)

// NotifyNearest evaluates the nearest upcoming qualification deadline for one
// user and sends the reminder immediately, bypassing the dedup history. When
// the user already marked the race done, an "already handled" acknowledgment
// is sent instead of silence.
func (s *Service) NotifyNearest(ctx context.Context, userID int64) error {
	ev, ok := s.calendar.Next(s.now())
	if !ok {
		return fmt.Errorf("no upcoming race in the calendar")
	}

	u := s.users.GetOrCreate(userID)
	job := models.NotificationJob{
		Kind:   models.JobQualiClosing,
		Event:  ev,
		Label:  "manual",
		UserID: userID,
	}

	msg := s.buildMessage(job, u, true)
	if err := s.sender.Send(ctx, userID, msg); err != nil {
		return fmt.Errorf("send on-demand reminder: %w", err)
	}
	return nil
}
