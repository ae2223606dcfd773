// Package diffsync reconciles a finalized crawl snapshot against persisted
// state, computing only the rows that actually changed.
package diffsync

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ending-signal/crawler/internal/aggregate"
	"github.com/ending-signal/crawler/internal/catalog"
	"github.com/ending-signal/crawler/internal/storage"
)

// Engine syncs one source's snapshot into the content store.
type Engine struct {
	store  storage.ContentStore
	source string
	logger *zap.Logger
}

// New builds an Engine for a source.
func New(store storage.ContentStore, source string, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, source: source, logger: logger}
}

// Plan computes the minimal change set: an insert for every unseen id, an
// update only when title, status, or meta differ from the persisted row.
// Persisted ids absent from the snapshot are left untouched. The result is
// ordered by content id so writes are deterministic.
func Plan(snapshot aggregate.Snapshot, persisted map[string]storage.ContentRow, source string) storage.ChangeSet {
	var changes storage.ChangeSet
	for id, rec := range snapshot.Records {
		target := storage.ContentRow{
			ContentID:   id,
			Source:      source,
			ContentType: catalog.ContentType,
			Title:       rec.Title,
			Status:      snapshot.StatusOf(id),
			Meta: storage.Meta{
				Authors:      rec.AuthorNames(),
				Weekdays:     rec.Weekdays,
				ThumbnailURL: rec.Thumbnail,
			},
		}

		prev, exists := persisted[id]
		if !exists {
			changes.Inserts = append(changes.Inserts, target)
			continue
		}
		if prev.Title != target.Title || prev.Status != target.Status || !prev.Meta.Equal(target.Meta) {
			changes.Updates = append(changes.Updates, target)
		}
	}

	changes.Inserts = dedupByKey(changes.Inserts)
	sortRows(changes.Inserts)
	sortRows(changes.Updates)
	return changes
}

// Sync loads the persisted rows, plans the diff, and applies it in one
// transaction. Returns the applied insert and update counts.
func (e *Engine) Sync(ctx context.Context, snapshot aggregate.Snapshot) (inserted, updated int, err error) {
	persisted, err := e.store.LoadBySource(ctx, e.source)
	if err != nil {
		return 0, 0, fmt.Errorf("load persisted rows: %w", err)
	}

	changes := Plan(snapshot, persisted, e.source)
	if changes.Empty() {
		e.logger.Info("snapshot already in sync", zap.String("source", e.source))
		return 0, 0, nil
	}

	if err := e.store.Apply(ctx, changes); err != nil {
		return 0, 0, fmt.Errorf("apply change set: %w", err)
	}
	e.logger.Info("synchronized snapshot",
		zap.String("source", e.source),
		zap.Int("inserted", len(changes.Inserts)),
		zap.Int("updated", len(changes.Updates)),
	)
	return len(changes.Inserts), len(changes.Updates), nil
}

func dedupByKey(rows []storage.ContentRow) []storage.ContentRow {
	if len(rows) < 2 {
		return rows
	}
	type key struct{ id, source string }
	seen := make(map[key]struct{}, len(rows))
	out := rows[:0]
	for _, row := range rows {
		k := key{row.ContentID, row.Source}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, row)
	}
	return out
}

func sortRows(rows []storage.ContentRow) {
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].ContentID < rows[j].ContentID
	})
}
