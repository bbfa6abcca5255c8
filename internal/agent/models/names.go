// Package models defines the plain data types shared between the agent's
// storage, staging and sync packages.
package models

import (
	"encoding/json"
	"sort"
)

// NameSet is a set of base names (no directories).
type NameSet map[string]struct{}

func NewNameSet(names ...string) NameSet {
	s := make(NameSet, len(names))
	for _, n := range names {
		s.Add(n)
	}
	return s
}

func (s NameSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

func (s NameSet) Add(name string) {
	if name != "" {
		s[name] = struct{}{}
	}
}

// Sorted returns the names in lexical order.
func (s NameSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the set as a sorted JSON array.
func (s NameSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON accepts a JSON array of strings; null yields an empty set.
func (s *NameSet) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	*s = NewNameSet(names...)
	return nil
}

// Exclusions are the names already synced, so staging skips them.
type Exclusions struct {
	Folders NameSet
	Files   NameSet
}

func NewExclusions() Exclusions {
	return Exclusions{Folders: NewNameSet(), Files: NewNameSet()}
}
