package models

// JobKind enumerates the kinds of notification jobs the scheduler can emit.
// The dispatcher switches exhaustively over this set.
type JobKind string

const (
	// JobQualiClosing is a fixed-offset reminder before the qualification
	// deadline (48h/24h/2h/10min).
	JobQualiClosing JobKind = "quali_closing"
	// JobQualiOpens announces that the qualification window has opened.
	JobQualiOpens JobKind = "quali_opens"
	// JobRaceLive announces that the race is starting.
	JobRaceLive JobKind = "race_live"
	// JobRaceReplay points at the previous race's replay.
	JobRaceReplay JobKind = "race_replay"
	// JobRaceResults points at the previous race's results.
	JobRaceResults JobKind = "race_results"
	// JobCustom is a single-user reminder at a user-chosen offset.
	JobCustom JobKind = "custom"
)

// NotificationJob is one due notification, produced by the scheduler's decide
// phase and consumed by the delivery dispatcher. Broadcast jobs (UserID == 0)
// fan out to every user with the job's category enabled; custom jobs target
// exactly one user.
type NotificationJob struct {
	Kind  JobKind
	Event Event

	// Label is the trigger label ("48h", "opens_soon", "custom_1", ...);
	// for broadcast jobs it doubles as the user toggle category.
	Label string

	// Key identifies the (event, trigger) pair in the dedup history.
	Key string

	// UserID is set only for JobCustom.
	UserID int64
}

// Broadcast reports whether the job targets all eligible users.
func (j NotificationJob) Broadcast() bool {
	return j.Kind != JobCustom
}
