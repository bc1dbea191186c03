// Package users manages subscriber records and their notification
// preferences, persisted as a single durable JSON file.
package users

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"

	"gridalert/internal/storage"
	"gridalert/models"
)

// ErrUnknownUser is returned by mutations that require an existing record.
var ErrUnknownUser = errors.New("unknown user")

// Service is the user preference store. All mutations persist synchronously
// before returning, so a mutation observed by the caller is already durable.
type Service struct {
	mu    sync.RWMutex
	users map[int64]*models.User
	store *storage.Store
	path  string
}

// New creates the store and loads the durable user file. A missing file
// yields an empty store; a corrupt file is logged and yields an empty store.
func New(store *storage.Store, path string) *Service {
	s := &Service{
		users: make(map[int64]*models.User),
		store: store,
		path:  path,
	}
	s.load()
	return s
}

func (s *Service) load() {
	var raw map[string]*models.User
	found, err := s.store.Load(s.path, &raw)
	if err != nil {
		log.Printf("[users] load error: %v", err)
		return
	}
	if !found {
		return
	}

	for idStr, u := range raw {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			log.Printf("[users] skipping record with bad id %q", idStr)
			continue
		}
		u.ID = id
		s.users[id] = u
	}
	log.Printf("[users] loaded %d users", len(s.users))
}

// saveLocked persists the full user map. Callers hold s.mu.
func (s *Service) saveLocked() error {
	raw := make(map[string]*models.User, len(s.users))
	for id, u := range s.users {
		raw[strconv.FormatInt(id, 10)] = u
	}
	if err := s.store.Save(s.path, raw); err != nil {
		return fmt.Errorf("persist users: %w", err)
	}
	return nil
}

// GetOrCreate returns the user's record, creating one with defaults on first
// contact. Records written by older versions are migrated in place; all
// migrations for one read coalesce into a single persist.
func (s *Service) GetOrCreate(id int64) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		u = models.NewUser(id)
		s.users[id] = u
		if err := s.saveLocked(); err != nil {
			log.Printf("[users] save new user %d: %v", id, err)
		}
		log.Printf("[users] new user %d registered", id)
		return u.Clone()
	}

	if migrateLocked(u) {
		if err := s.saveLocked(); err != nil {
			log.Printf("[users] save migrated user %d: %v", id, err)
		}
	}
	return u.Clone()
}

// migrateLocked fills fields missing from older records. Returns true when
// anything changed.
func migrateLocked(u *models.User) bool {
	changed := false
	if u.Notifications == nil {
		u.Notifications = models.DefaultNotifications()
		changed = true
	} else {
		for _, c := range models.NotificationCategories {
			if _, ok := u.Notifications[c]; !ok {
				u.Notifications[c] = true
				changed = true
			}
		}
	}
	for len(u.Custom) < models.MaxCustomSlots {
		u.Custom = append(u.Custom, models.CustomTrigger{})
		changed = true
	}
	if u.Lang == "" {
		u.Lang = models.DefaultLang
		changed = true
	}
	if u.UILang == "" {
		u.UILang = "en"
		changed = true
	}
	return changed
}

// Get returns a deep copy of the user's record without creating one. The copy
// shares nothing with the live record, so callers may read it without holding
// the store's lock while mutations keep landing.
func (s *Service) Get(id int64) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, false
	}
	return u.Clone(), true
}

// List returns deep copies of every user record, safe to read outside the
// store's lock.
func (s *Service) List() []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.Clone())
	}
	return out
}

// Enabled reports whether the user has the given category switched on.
// Unknown users get the default (on).
func (s *Service) Enabled(id int64, category string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return true
	}
	return u.NotificationEnabled(category)
}

// Toggle flips a category for the user and persists. Returns the new state.
func (s *Service) Toggle(id int64, category string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.ensureLocked(id)
	next := !u.NotificationEnabled(category)
	u.Notifications[category] = next
	if err := s.saveLocked(); err != nil {
		return next, err
	}
	log.Printf("[users] user %d set %q to %v", id, category, next)
	return next, nil
}

// MarkDone records that the user has handled the given race's qualification.
func (s *Service) MarkDone(id int64, eventID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.ensureLocked(id)
	u.CompletedQuali = &eventID
	if err := s.saveLocked(); err != nil {
		return err
	}
	log.Printf("[users] user %d marked race %d done", id, eventID)
	return nil
}

// Reset clears the user's done marker.
func (s *Service) Reset(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return ErrUnknownUser
	}
	u.CompletedQuali = nil
	if err := s.saveLocked(); err != nil {
		return err
	}
	log.Printf("[users] user %d reset", id)
	return nil
}

// SetGroup records the user's league group, used for deep links only.
func (s *Service) SetGroup(id int64, group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.ensureLocked(id)
	u.Group = &group
	if err := s.saveLocked(); err != nil {
		return err
	}
	log.Printf("[users] user %d set group %q", id, group)
	return nil
}

// SetLang sets the user's upstream-site language for links.
func (s *Service) SetLang(id int64, lang string) error {
	if !ValidLang(lang) {
		return fmt.Errorf("invalid language code %q", lang)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.ensureLocked(id)
	u.Lang = lang
	return s.saveLocked()
}

// SetUILang sets the language the bot speaks to the user. Opaque to the
// scheduling core.
func (s *Service) SetUILang(id int64, lang string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.ensureLocked(id)
	u.UILang = lang
	return s.saveLocked()
}

// SetCustom sets or clears one custom notification slot. A nil hoursBefore
// disables the slot. Validation failures leave state unchanged.
func (s *Service) SetCustom(id int64, slot int, hoursBefore *float64) error {
	if slot < 0 || slot >= models.MaxCustomSlots {
		return fmt.Errorf("slot must be between 1 and %d", models.MaxCustomSlots)
	}
	if hoursBefore != nil {
		if err := ValidateOffset(*hoursBefore); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.ensureLocked(id)
	if hoursBefore == nil {
		u.Custom[slot] = models.CustomTrigger{}
	} else {
		v := *hoursBefore
		u.Custom[slot] = models.CustomTrigger{Enabled: true, HoursBefore: &v}
	}
	if err := s.saveLocked(); err != nil {
		return err
	}
	log.Printf("[users] user %d set custom slot %d to %s", id, slot+1, FormatOffset(hoursBefore))
	return nil
}

// ensureLocked returns the record for id, creating and migrating as needed.
// Callers hold s.mu and are about to persist anyway.
func (s *Service) ensureLocked(id int64) *models.User {
	u, ok := s.users[id]
	if !ok {
		u = models.NewUser(id)
		s.users[id] = u
		return u
	}
	migrateLocked(u)
	return u
}
