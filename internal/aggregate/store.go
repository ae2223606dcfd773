// Package aggregate merges fragmentary per-page results from concurrent
// crawlers into one canonical record per content id.
package aggregate

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/ending-signal/crawler/internal/catalog"
)

// ErrFinalized is returned by mutations after Finalize has run.
var ErrFinalized = errors.New("aggregation store is finalized")

// Store accumulates content records for one run. All mutation goes through a
// single mutex so a merge is atomic per id: no upsert observes or leaves a
// partially merged record.
type Store struct {
	mu        sync.Mutex
	records   map[string]*catalog.ContentRecord
	weekdays  map[string]map[string]struct{}
	ongoing   map[string]struct{}
	hiatus    map[string]struct{}
	finished  map[string]struct{}
	finalized bool
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		records:  make(map[string]*catalog.ContentRecord),
		weekdays: make(map[string]map[string]struct{}),
		ongoing:  make(map[string]struct{}),
		hiatus:   make(map[string]struct{}),
		finished: make(map[string]struct{}),
	}
}

// Upsert merges an item observed under a weekday tab. The first observation
// of an id supplies the record fields; later observations only union the
// weekday set, so upserts commute across tabs. The status badge is inspected
// on every observation: a hiatus marker on any tab marks the id hiatus.
func (s *Store) Upsert(item catalog.Item, weekday string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return ErrFinalized
	}

	id := item.ContentID()
	if _, ok := s.records[id]; !ok {
		s.records[id] = recordFromItem(id, item)
		s.weekdays[id] = make(map[string]struct{})
	}
	s.weekdays[id][weekday] = struct{}{}

	if strings.Contains(item.StatusBadge, catalog.HiatusMarker) {
		s.hiatus[id] = struct{}{}
	} else {
		s.ongoing[id] = struct{}{}
	}
	return nil
}

// UpsertCompleted merges an item observed in the completed listing and marks
// it finished. It reports whether the id was new to this run, which the
// completion crawler counts toward its discovery threshold; ids already seen
// under a weekday tab are reclassified but not counted again.
func (s *Store) UpsertCompleted(item catalog.Item) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return false, ErrFinalized
	}

	id := item.ContentID()
	_, seen := s.records[id]
	if !seen {
		s.records[id] = recordFromItem(id, item)
	}
	s.finished[id] = struct{}{}
	return !seen, nil
}

// Len returns the number of unique content ids aggregated so far.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Snapshot is the immutable result of a finalized run. Membership sets are
// mutually exclusive: finished wins over hiatus, hiatus over ongoing.
type Snapshot struct {
	Records  map[string]catalog.ContentRecord
	Ongoing  map[string]struct{}
	Hiatus   map[string]struct{}
	Finished map[string]struct{}
}

// StatusOf classifies an id in the snapshot.
func (s Snapshot) StatusOf(id string) catalog.Status {
	if _, ok := s.Finished[id]; ok {
		return catalog.StatusFinished
	}
	if _, ok := s.Hiatus[id]; ok {
		return catalog.StatusHiatus
	}
	return catalog.StatusOngoing
}

// Title returns the aggregated title for an id, falling back to the id when
// the record carries none.
func (s Snapshot) Title(id string) string {
	if rec, ok := s.Records[id]; ok && rec.Title != "" {
		return rec.Title
	}
	return id
}

// Finalize freezes the store: weekday sets become canonically ordered
// slices, the precedence rule resolves the membership sets, and further
// mutation is rejected. It must be called exactly once per run.
func (s *Store) Finalize() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return Snapshot{}, ErrFinalized
	}
	s.finalized = true

	snap := Snapshot{
		Records:  make(map[string]catalog.ContentRecord, len(s.records)),
		Ongoing:  make(map[string]struct{}),
		Hiatus:   make(map[string]struct{}),
		Finished: make(map[string]struct{}, len(s.finished)),
	}

	for id, rec := range s.records {
		out := *rec
		out.Weekdays = sortedWeekdays(s.weekdays[id])
		snap.Records[id] = out
	}

	for id := range s.finished {
		snap.Finished[id] = struct{}{}
	}
	for id := range s.hiatus {
		if _, done := snap.Finished[id]; !done {
			snap.Hiatus[id] = struct{}{}
		}
	}
	for id := range s.ongoing {
		if _, done := snap.Finished[id]; done {
			continue
		}
		if _, paused := snap.Hiatus[id]; paused {
			continue
		}
		snap.Ongoing[id] = struct{}{}
	}
	return snap, nil
}

func recordFromItem(id string, item catalog.Item) *catalog.ContentRecord {
	return &catalog.ContentRecord{
		ID:          id,
		Title:       item.Title,
		Thumbnail:   item.Thumbnail,
		BadgeList:   append([]string(nil), item.BadgeList...),
		StatusBadge: item.StatusBadge,
		AgeGrade:    item.AgeGrade,
		Authors:     append([]catalog.Author(nil), item.Authors...),
	}
}

func sortedWeekdays(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for day := range set {
		out = append(out, day)
	}
	sort.Slice(out, func(i, j int) bool {
		return catalog.WeekdayIndex(out[i]) < catalog.WeekdayIndex(out[j])
	})
	return out
}
