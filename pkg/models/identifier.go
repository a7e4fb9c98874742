package models

import (
	"fmt"
	"sort"
	"strings"
)

// MaxIdentifierLength is the longest handle the upstream accepts
const MaxIdentifierLength = 30

// NormalizeIdentifier trims whitespace, strips a leading '@' and lowercases the
// handle. The result is validated before it is returned.
func NormalizeIdentifier(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	id = strings.TrimPrefix(id, "@")
	id = strings.TrimRight(id, "/ ")
	id = strings.ToLower(id)

	if err := ValidateIdentifier(id); err != nil {
		return "", err
	}
	return id, nil
}

// ValidateIdentifier checks length and character set of an already normalized handle
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("identifier is empty")
	}
	if len(id) > MaxIdentifierLength {
		return fmt.Errorf("identifier %q is longer than %d characters", id, MaxIdentifierLength)
	}

	for _, char := range id {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '.' || char == '_') {
			return fmt.Errorf("identifier %q contains invalid character %q", id, char)
		}
	}

	return nil
}

// IdentifierSet is a case-insensitive set of handles. Members are stored in
// their normalized lowercase form. The zero value is not usable; use NewIdentifierSet.
type IdentifierSet struct {
	members map[string]struct{}
}

// NewIdentifierSet builds a set from raw handles. Invalid handles are dropped.
func NewIdentifierSet(ids ...string) *IdentifierSet {
	s := &IdentifierSet{members: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add normalizes id and inserts it. It reports whether the member is new;
// invalid handles are never added.
func (s *IdentifierSet) Add(id string) bool {
	norm, err := NormalizeIdentifier(id)
	if err != nil {
		return false
	}
	if _, ok := s.members[norm]; ok {
		return false
	}
	s.members[norm] = struct{}{}
	return true
}

// Contains reports membership, ignoring case and a leading '@'
func (s *IdentifierSet) Contains(id string) bool {
	norm, err := NormalizeIdentifier(id)
	if err != nil {
		return false
	}
	_, ok := s.members[norm]
	return ok
}

// Len returns the number of members
func (s *IdentifierSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.members)
}

// Sorted returns the members in ascending order
func (s *IdentifierSet) Sorted() []string {
	if s == nil {
		return []string{}
	}
	out := make([]string, 0, len(s.members))
	for id := range s.members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy
func (s *IdentifierSet) Clone() *IdentifierSet {
	c := &IdentifierSet{members: make(map[string]struct{}, s.Len())}
	if s != nil {
		for id := range s.members {
			c.members[id] = struct{}{}
		}
	}
	return c
}

// Difference returns the members of s that are not in other
func (s *IdentifierSet) Difference(other *IdentifierSet) *IdentifierSet {
	out := NewIdentifierSet()
	if s == nil {
		return out
	}
	for id := range s.members {
		if other == nil {
			out.members[id] = struct{}{}
			continue
		}
		if _, ok := other.members[id]; !ok {
			out.members[id] = struct{}{}
		}
	}
	return out
}

// Intersection returns the members present in both sets
func (s *IdentifierSet) Intersection(other *IdentifierSet) *IdentifierSet {
	out := NewIdentifierSet()
	if s == nil || other == nil {
		return out
	}
	small, large := s, other
	if small.Len() > large.Len() {
		small, large = large, small
	}
	for id := range small.members {
		if _, ok := large.members[id]; ok {
			out.members[id] = struct{}{}
		}
	}
	return out
}
