package state

import (
	"encoding/json"
	"fmt"
	"os"
)

// DefaultMaxUsed bounds a used set when the caller passes no cap.
const DefaultMaxUsed = 500

// UsedSet is the bounded, append-only record of article identities already
// consumed for one content type. Oldest entries fall off when the cap is
// exceeded on save. An identity present in the set must never be selected
// again for that content type.
type UsedSet struct {
	path string
	max  int
	ids  []string // oldest first
	seen map[string]struct{}
}

type usedFile struct {
	Used []string `json:"used"`
}

// LoadUsedSet reads the used set at path. A missing file yields an empty
// set; a corrupt file is an error rather than silent data loss.
func LoadUsedSet(path string, max int) (*UsedSet, error) {
	if max <= 0 {
		max = DefaultMaxUsed
	}
	s := &UsedSet{path: path, max: max, seen: make(map[string]struct{})}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading used set: %w", err)
	}

	var f usedFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing used set %s: %w", path, err)
	}
	for _, id := range f.Used {
		s.add(id)
	}
	return s, nil
}

// Contains reports whether the identity was already consumed.
func (s *UsedSet) Contains(id string) bool {
	_, ok := s.seen[id]
	return ok
}

// Add appends identities, ignoring ones already present.
func (s *UsedSet) Add(ids ...string) {
	for _, id := range ids {
		s.add(id)
	}
}

func (s *UsedSet) add(id string) {
	if id == "" {
		return
	}
	if _, ok := s.seen[id]; ok {
		return
	}
	s.ids = append(s.ids, id)
	s.seen[id] = struct{}{}
}

// Len returns the number of identities currently tracked.
func (s *UsedSet) Len() int {
	return len(s.ids)
}

// Save caps the set to its most recent max entries and writes it out
// atomically (temp file + rename), so a crash never leaves a torn file.
func (s *UsedSet) Save() error {
	if len(s.ids) > s.max {
		dropped := s.ids[:len(s.ids)-s.max]
		for _, id := range dropped {
			delete(s.seen, id)
		}
		s.ids = append([]string(nil), s.ids[len(dropped):]...)
	}

	data, err := json.MarshalIndent(usedFile{Used: s.ids}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding used set: %w", err)
	}
	return writeFileAtomic(s.path, data)
}
