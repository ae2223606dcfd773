// Package catalog defines core types shared across the ingestion pipeline.
package catalog

import "strconv"

// Status represents the lifecycle classification of a title.
type Status string

// Status values persisted in contents.status.
const (
	StatusOngoing  Status = "ongoing"
	StatusHiatus   Status = "hiatus"
	StatusFinished Status = "finished"
)

// HiatusMarker is the substring the remote catalog places in a status badge
// while publication of a title is paused.
const HiatusMarker = "휴재"

// ContentType is the fixed content_type persisted for every row this
// pipeline owns.
const ContentType = "webtoon"

// Weekdays lists the weekday tab keys in canonical order. Weekday sets are
// sorted into this order at finalize time so persisted meta is deterministic.
var Weekdays = []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

// WeekdayTabIDs maps a weekday key to the tab uid the remote service expects.
var WeekdayTabIDs = map[string]string{
	"mon": "1", "tue": "2", "wed": "3", "thu": "4", "fri": "5", "sat": "6", "sun": "7",
}

var weekdayIndex = func() map[string]int {
	m := make(map[string]int, len(Weekdays))
	for i, d := range Weekdays {
		m[d] = i
	}
	return m
}()

// WeekdayIndex returns the canonical position of a weekday key, or a value
// past the end for unknown keys so they sort last.
func WeekdayIndex(day string) int {
	if i, ok := weekdayIndex[day]; ok {
		return i
	}
	return len(Weekdays)
}

// Author is a single creator credit on a listing item.
type Author struct {
	Name string `json:"name"`
	Role string `json:"type"`
}

// Item is one decoded entry from a listing page.
type Item struct {
	SeriesID    int64    `json:"seriesId"`
	Title       string   `json:"title"`
	Thumbnail   string   `json:"thumbnail"`
	BadgeList   []string `json:"badgeList"`
	StatusBadge string   `json:"statusBadge"`
	AgeGrade    int      `json:"ageGrade"`
	Authors     []Author `json:"authors"`
}

// ContentID returns the source-scoped identity of the item.
func (i Item) ContentID() string {
	return strconv.FormatInt(i.SeriesID, 10)
}

// ContentRecord is the aggregate built for one content id during a run.
// It is owned by the aggregation store until the run finalizes, after which
// it is read-only.
type ContentRecord struct {
	ID          string
	Title       string
	Thumbnail   string
	BadgeList   []string
	StatusBadge string
	AgeGrade    int
	Authors     []Author

	// Weekdays is populated at finalize time, sorted canonically.
	Weekdays []string
}

// AuthorNames returns just the creator names, in listing order.
func (r ContentRecord) AuthorNames() []string {
	names := make([]string, 0, len(r.Authors))
	for _, a := range r.Authors {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return names
}
