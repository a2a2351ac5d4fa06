package state

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

const dayFormat = "2006-01-02"

// DailyCounter tracks how many breaking-news items were confirmed per
// calendar day. Counts older than seven days are pruned on save.
type DailyCounter struct {
	path   string
	counts map[string]int
}

type counterFile struct {
	DailyCounts map[string]int `json:"daily_counts"`
}

// LoadDailyCounter reads the counter at path; missing file yields zeroes.
func LoadDailyCounter(path string) (*DailyCounter, error) {
	c := &DailyCounter{path: path, counts: make(map[string]int)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading daily counter: %w", err)
	}

	var f counterFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing daily counter %s: %w", path, err)
	}
	if f.DailyCounts != nil {
		c.counts = f.DailyCounts
	}
	return c, nil
}

// CountFor returns the confirmed count for the given day.
func (c *DailyCounter) CountFor(day time.Time) int {
	return c.counts[day.Format(dayFormat)]
}

// Increment bumps the given day's count by one.
func (c *DailyCounter) Increment(day time.Time) {
	c.counts[day.Format(dayFormat)]++
}

// Save prunes counts older than seven days before the given day and writes
// the counter atomically.
func (c *DailyCounter) Save(today time.Time) error {
	cutoff := today.AddDate(0, 0, -7).Format(dayFormat)
	for day := range c.counts {
		if day < cutoff {
			delete(c.counts, day)
		}
	}

	data, err := json.MarshalIndent(counterFile{DailyCounts: c.counts}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding daily counter: %w", err)
	}
	return writeFileAtomic(c.path, data)
}
