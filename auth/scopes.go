package auth

import (
	"sort"
	"strings"
)

// OfflineAccess asks for a refresh token alongside the access token.
const OfflineAccess = "offline_access"

// Scopes is an ordered set of permission scopes. Each client declares what it needs and the
// credential accumulates the union; there is no process-wide registry.
type Scopes struct {
	set map[string]struct{}
}

// NewScopes ...
func NewScopes(scopes ...string) *Scopes {
	s := &Scopes{set: map[string]struct{}{}}
	s.Add(scopes...)
	return s
}

// Add merges scopes in and reports whether any of them was new. Comparison ignores case.
func (s *Scopes) Add(scopes ...string) bool {
	added := false
	for _, scope := range scopes {
		scope = strings.TrimSpace(scope)
		if scope == "" {
			continue
		}
		key := strings.ToLower(scope)
		if _, ok := s.set[key]; ok {
			continue
		}
		s.set[key] = struct{}{}
		added = true
	}
	return added
}

// Covers reports whether every scope in scopes is already part of the set.
func (s *Scopes) Covers(scopes []string) bool {
	for _, scope := range scopes {
		if _, ok := s.set[strings.ToLower(strings.TrimSpace(scope))]; !ok {
			return false
		}
	}
	return true
}

// List returns the scopes sorted.
func (s *Scopes) List() []string {
	list := make([]string, 0, len(s.set))
	for scope := range s.set {
		list = append(list, scope)
	}
	sort.Strings(list)
	return list
}

// Len ...
func (s *Scopes) Len() int {
	return len(s.set)
}
