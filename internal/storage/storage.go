// Package storage defines the persistence contracts the pipeline drives.
// The interfaces decouple the sync and notification logic from Postgres so
// tests can substitute fakes.
package storage

import (
	"context"
	"slices"

	"github.com/ending-signal/crawler/internal/catalog"
)

// Meta is the structured blob persisted with each content row.
type Meta struct {
	Authors      []string `json:"authors"`
	Weekdays     []string `json:"weekdays"`
	ThumbnailURL string   `json:"thumbnail_url"`
}

// Equal compares field by field; nil and empty slices are equivalent.
func (m Meta) Equal(other Meta) bool {
	return slices.Equal(m.Authors, other.Authors) &&
		slices.Equal(m.Weekdays, other.Weekdays) &&
		m.ThumbnailURL == other.ThumbnailURL
}

// ContentRow mirrors one row of the contents table, keyed by
// (content_id, source).
type ContentRow struct {
	ContentID   string
	Source      string
	ContentType string
	Title       string
	Status      catalog.Status
	Meta        Meta
}

// ChangeSet is the minimal write batch computed by diff sync. Updates are
// applied before inserts, all inside one transaction.
type ChangeSet struct {
	Updates []ContentRow
	Inserts []ContentRow
}

// Empty reports whether the change set carries no writes.
func (c ChangeSet) Empty() bool {
	return len(c.Updates) == 0 && len(c.Inserts) == 0
}

// ContentStore persists content rows for a source. Rows absent from a run's
// snapshot are never deleted or downgraded.
type ContentStore interface {
	// LoadBySource reads every persisted row for the source, keyed by
	// content id.
	LoadBySource(ctx context.Context, source string) (map[string]ContentRow, error)
	// LoadStatuses reads just the persisted status per content id.
	LoadStatuses(ctx context.Context, source string) (map[string]catalog.Status, error)
	// Apply commits the change set transactionally: all writes or none.
	Apply(ctx context.Context, changes ChangeSet) error
}

// Subscription links a subscriber to one content id of a source.
type Subscription struct {
	Email     string
	ContentID string
}

// SubscriptionStore resolves subscribers for notification fan-out. Read-only
// to the pipeline.
type SubscriptionStore interface {
	ListByContentIDs(ctx context.Context, source string, contentIDs []string) ([]Subscription, error)
}
