package types

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ConfigChange describes one accepted configuration update. Changes are
// immutable after publish: the event bus hands the same value to every
// subscriber and nobody mutates it.
type ConfigChange struct {
	ID          string    `json:"id"`           // Unique event identifier
	Name        string    `json:"name"`         // Configuration name
	OldVersion  int64     `json:"old_version"`  // 0 when the name is new
	NewVersion  int64     `json:"new_version"`  // Version assigned by this update
	DiffSummary []string  `json:"diff_summary"` // Top-level keys added/removed/changed
	Timestamp   time.Time `json:"timestamp"`    // When the update was accepted
}

// Topic returns the event bus topic for this change.
func (c ConfigChange) Topic() string {
	return "config." + c.Name
}

// NewConfigChange builds a change event for an accepted update, summarizing
// the top-level payload differences between the old and new data.
func NewConfigChange(name string, oldVersion, newVersion int64, oldData, newData map[string]any) ConfigChange {
	return ConfigChange{
		ID:          uuid.NewString(),
		Name:        name,
		OldVersion:  oldVersion,
		NewVersion:  newVersion,
		DiffSummary: DiffSummary(oldData, newData),
		Timestamp:   time.Now().UTC(),
	}
}

// DiffSummary lists top-level keys that differ between two payloads, each
// prefixed with +, -, or ~ for added, removed, or changed. Keys are sorted
// for stable output.
func DiffSummary(oldData, newData map[string]any) []string {
	var summary []string

	for key, newVal := range newData {
		oldVal, exists := oldData[key]
		switch {
		case !exists:
			summary = append(summary, "+"+key)
		case !equalValue(oldVal, newVal):
			summary = append(summary, "~"+key)
		}
	}
	for key := range oldData {
		if _, exists := newData[key]; !exists {
			summary = append(summary, "-"+key)
		}
	}

	sort.Slice(summary, func(i, j int) bool {
		// Order by key name, ignoring the change marker
		return summary[i][1:] < summary[j][1:]
	})
	return summary
}

// equalValue compares two JSON-compatible values structurally. JSON encoding
// sorts map keys, giving a stable comparison for nested payloads.
func equalValue(a, b any) bool {
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(aj) == string(bj)
}
