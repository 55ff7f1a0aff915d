package permissions

import (
	"sort"
	"sync"
)

// Settings holds the process-wide authorization switches: the global on/off
// flag and the configured admin principals. It is explicit state handed to
// the checker and the store, never ambient globals, and may be mutated at
// runtime.
type Settings struct {
	mu          sync.RWMutex
	enabled     bool
	adminUsers  map[string]struct{}
	adminGroups map[string]struct{}
}

// NewSettings builds runtime authorization settings.
func NewSettings(enabled bool, adminUsers, adminGroups []string) *Settings {
	s := &Settings{
		enabled:     enabled,
		adminUsers:  make(map[string]struct{}),
		adminGroups: make(map[string]struct{}),
	}
	s.SetAdminUsers(adminUsers)
	s.SetAdminGroups(adminGroups)
	return s
}

// Enabled reports whether authorization checks are active. When disabled,
// every decision resolves to true and the store skips its self-governance
// gate.
func (s *Settings) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// SetEnabled toggles authorization checks at runtime.
func (s *Settings) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

// IsAdmin reports whether the principal bypasses all authorization checks,
// either directly or through one of its groups.
func (s *Settings) IsAdmin(userID string, groupIDs []string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if userID != "" {
		if _, ok := s.adminUsers[userID]; ok {
			return true
		}
	}
	for _, groupID := range groupIDs {
		if _, ok := s.adminGroups[groupID]; ok {
			return true
		}
	}
	return false
}

// SetAdminUsers replaces the configured admin user set.
func (s *Settings) SetAdminUsers(userIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.adminUsers = make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		s.adminUsers[id] = struct{}{}
	}
}

// SetAdminGroups replaces the configured admin group set.
func (s *Settings) SetAdminGroups(groupIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.adminGroups = make(map[string]struct{}, len(groupIDs))
	for _, id := range groupIDs {
		if id == "" {
			continue
		}
		s.adminGroups[id] = struct{}{}
	}
}

// AdminUsers returns the configured admin user ids, sorted.
func (s *Settings) AdminUsers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.adminUsers)
}

// AdminGroups returns the configured admin group ids, sorted.
func (s *Settings) AdminGroups() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.adminGroups)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
