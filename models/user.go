package models

// Fixed notification categories. Every user record carries a complete toggle
// map over exactly this set; missing keys are filled in on read.
const (
	Notify48h     = "48h"
	Notify24h     = "24h"
	Notify2h      = "2h"
	Notify10min   = "10min"
	NotifyOpens   = "opens_soon"
	NotifyReplay  = "race_replay"
	NotifyLive    = "race_live"
	NotifyResults = "race_results"
)

// NotificationCategories lists all fixed categories in display order.
var NotificationCategories = []string{
	Notify48h, Notify24h, Notify2h, Notify10min,
	NotifyOpens, NotifyReplay, NotifyLive, NotifyResults,
}

// MaxCustomSlots is the number of custom notification slots per user.
const MaxCustomSlots = 2

// CustomTrigger is one user-defined reminder slot: a number of hours before
// the qualification deadline. An empty slot has Enabled=false and a nil offset.
type CustomTrigger struct {
	Enabled     bool     `json:"enabled"`
	HoursBefore *float64 `json:"hours_before"`
}

// User is a subscriber and their notification preferences.
type User struct {
	ID int64 `json:"-"`

	// CompletedQuali holds the race id the user has marked done; automatic
	// reminders for that race are suppressed until reset.
	CompletedQuali *int `json:"completed_quali"`

	// Group is the user's league group (E, M3, R11, ...), used only for
	// building deep links.
	Group *string `json:"group"`

	Notifications map[string]bool `json:"notifications"`
	Custom        []CustomTrigger `json:"custom_notifications"`

	// Lang selects the upstream site language for links; UILang selects the
	// message language. Both are opaque to the scheduling core.
	Lang   string `json:"lang"`
	UILang string `json:"ui_lang"`
}

// DefaultLang is the fallback upstream-site language code.
const DefaultLang = "gb"

// DefaultNotifications returns the toggle map for a new user: everything on.
func DefaultNotifications() map[string]bool {
	m := make(map[string]bool, len(NotificationCategories))
	for _, c := range NotificationCategories {
		m[c] = true
	}
	return m
}

// DefaultCustomTriggers returns MaxCustomSlots empty slots.
func DefaultCustomTriggers() []CustomTrigger {
	return make([]CustomTrigger, MaxCustomSlots)
}

// NewUser returns a user record with default preferences.
func NewUser(id int64) *User {
	return &User{
		ID:            id,
		Notifications: DefaultNotifications(),
		Custom:        DefaultCustomTriggers(),
		Lang:          DefaultLang,
		UILang:        "en",
	}
}

// Clone returns a deep copy that is safe to read while the original record
// keeps mutating under the store's lock.
func (u *User) Clone() User {
	c := *u
	if u.CompletedQuali != nil {
		v := *u.CompletedQuali
		c.CompletedQuali = &v
	}
	if u.Group != nil {
		g := *u.Group
		c.Group = &g
	}
	if u.Notifications != nil {
		c.Notifications = make(map[string]bool, len(u.Notifications))
		for k, v := range u.Notifications {
			c.Notifications[k] = v
		}
	}
	if u.Custom != nil {
		c.Custom = make([]CustomTrigger, len(u.Custom))
		copy(c.Custom, u.Custom)
		for i, tr := range u.Custom {
			if tr.HoursBefore != nil {
				v := *tr.HoursBefore
				c.Custom[i].HoursBefore = &v
			}
		}
	}
	return c
}

// NotificationEnabled reports whether the given category is on for the user.
// Unknown categories default to enabled, matching the behavior for users
// created before a category existed.
func (u *User) NotificationEnabled(category string) bool {
	if u.Notifications == nil {
		return true
	}
	enabled, ok := u.Notifications[category]
	if !ok {
		return true
	}
	return enabled
}
