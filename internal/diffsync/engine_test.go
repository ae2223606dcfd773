package diffsync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ending-signal/crawler/internal/aggregate"
	"github.com/ending-signal/crawler/internal/catalog"
	"github.com/ending-signal/crawler/internal/storage"
)

type fakeContentStore struct {
	rows      map[string]storage.ContentRow
	applied   []storage.ChangeSet
	loadErr   error
	applyErr  error
	loadCalls int
}

func newFakeContentStore() *fakeContentStore {
	return &fakeContentStore{rows: make(map[string]storage.ContentRow)}
}

func (f *fakeContentStore) LoadBySource(_ context.Context, _ string) (map[string]storage.ContentRow, error) {
	f.loadCalls++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	out := make(map[string]storage.ContentRow, len(f.rows))
	for id, row := range f.rows {
		out[id] = row
	}
	return out, nil
}

func (f *fakeContentStore) LoadStatuses(_ context.Context, _ string) (map[string]catalog.Status, error) {
	out := make(map[string]catalog.Status, len(f.rows))
	for id, row := range f.rows {
		out[id] = row.Status
	}
	return out, nil
}

func (f *fakeContentStore) Apply(_ context.Context, changes storage.ChangeSet) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied = append(f.applied, changes)
	for _, row := range changes.Updates {
		f.rows[row.ContentID] = row
	}
	for _, row := range changes.Inserts {
		f.rows[row.ContentID] = row
	}
	return nil
}

func snapshotOf(t *testing.T, build func(*aggregate.Store)) aggregate.Snapshot {
	t.Helper()
	store := aggregate.New()
	build(store)
	snap, err := store.Finalize()
	require.NoError(t, err)
	return snap
}

func TestSyncInsertsUnseenIDs(t *testing.T) {
	t.Parallel()

	snap := snapshotOf(t, func(s *aggregate.Store) {
		require.NoError(t, s.Upsert(catalog.Item{SeriesID: 1, Title: "A", Thumbnail: "th"}, "mon"))
		require.NoError(t, s.Upsert(catalog.Item{SeriesID: 1, Title: "A", Thumbnail: "th"}, "tue"))
	})

	store := newFakeContentStore()
	engine := New(store, "kakaopage", zap.NewNop())

	inserted, updated, err := engine.Sync(context.Background(), snap)
	require.NoError(t, err)
	require.Equal(t, 1, inserted)
	require.Equal(t, 0, updated)

	row := store.rows["1"]
	require.Equal(t, "webtoon", row.ContentType)
	require.Equal(t, catalog.StatusOngoing, row.Status)
	require.Equal(t, []string{"mon", "tue"}, row.Meta.Weekdays)
	require.Equal(t, "th", row.Meta.ThumbnailURL)
}

func TestSyncIsIdempotent(t *testing.T) {
	t.Parallel()

	snap := snapshotOf(t, func(s *aggregate.Store) {
		require.NoError(t, s.Upsert(catalog.Item{SeriesID: 1, Title: "A"}, "mon"))
		_, err := s.UpsertCompleted(catalog.Item{SeriesID: 2, Title: "B"})
		require.NoError(t, err)
	})

	store := newFakeContentStore()
	engine := New(store, "kakaopage", zap.NewNop())

	inserted, updated, err := engine.Sync(context.Background(), snap)
	require.NoError(t, err)
	require.Equal(t, 2, inserted)
	require.Equal(t, 0, updated)

	inserted, updated, err = engine.Sync(context.Background(), snap)
	require.NoError(t, err)
	require.Zero(t, inserted)
	require.Zero(t, updated)
	require.Len(t, store.applied, 1)
}

func TestSyncUpdatesOnlyChangedRows(t *testing.T) {
	t.Parallel()

	store := newFakeContentStore()
	store.rows["1"] = storage.ContentRow{
		ContentID: "1", Source: "kakaopage", ContentType: "webtoon",
		Title: "A", Status: catalog.StatusOngoing,
		Meta: storage.Meta{Authors: []string{}, Weekdays: []string{"mon"}},
	}
	store.rows["2"] = storage.ContentRow{
		ContentID: "2", Source: "kakaopage", ContentType: "webtoon",
		Title: "B", Status: catalog.StatusOngoing,
		Meta: storage.Meta{Authors: []string{}, Weekdays: []string{"tue"}},
	}

	snap := snapshotOf(t, func(s *aggregate.Store) {
		// id 1 unchanged, id 2 moved to hiatus
		require.NoError(t, s.Upsert(catalog.Item{SeriesID: 1, Title: "A"}, "mon"))
		require.NoError(t, s.Upsert(catalog.Item{SeriesID: 2, Title: "B", StatusBadge: catalog.HiatusMarker}, "tue"))
	})

	engine := New(store, "kakaopage", zap.NewNop())
	inserted, updated, err := engine.Sync(context.Background(), snap)
	require.NoError(t, err)
	require.Zero(t, inserted)
	require.Equal(t, 1, updated)
	require.Equal(t, catalog.StatusHiatus, store.rows["2"].Status)
	require.Equal(t, catalog.StatusOngoing, store.rows["1"].Status)
}

func TestSyncLeavesAbsentRowsUntouched(t *testing.T) {
	t.Parallel()

	store := newFakeContentStore()
	store.rows["99"] = storage.ContentRow{
		ContentID: "99", Source: "kakaopage", ContentType: "webtoon",
		Title: "Vanished", Status: catalog.StatusFinished,
	}

	snap := snapshotOf(t, func(s *aggregate.Store) {
		require.NoError(t, s.Upsert(catalog.Item{SeriesID: 1, Title: "A"}, "mon"))
	})

	engine := New(store, "kakaopage", zap.NewNop())
	_, _, err := engine.Sync(context.Background(), snap)
	require.NoError(t, err)
	require.Equal(t, "Vanished", store.rows["99"].Title)
	require.Equal(t, catalog.StatusFinished, store.rows["99"].Status)
}

func TestSyncPropagatesApplyFailure(t *testing.T) {
	t.Parallel()

	store := newFakeContentStore()
	store.applyErr = errors.New("connection reset")

	snap := snapshotOf(t, func(s *aggregate.Store) {
		require.NoError(t, s.Upsert(catalog.Item{SeriesID: 1, Title: "A"}, "mon"))
	})

	engine := New(store, "kakaopage", zap.NewNop())
	_, _, err := engine.Sync(context.Background(), snap)
	require.Error(t, err)
	require.Contains(t, err.Error(), "apply change set")
	require.Empty(t, store.rows)
}

func TestDedupByKeyDropsDuplicateInserts(t *testing.T) {
	t.Parallel()

	rows := []storage.ContentRow{
		{ContentID: "1", Source: "kakaopage", Title: "first"},
		{ContentID: "2", Source: "kakaopage", Title: "other"},
		{ContentID: "1", Source: "kakaopage", Title: "second"},
	}
	out := dedupByKey(rows)
	require.Len(t, out, 2)
	require.Equal(t, "first", out[0].Title)
}

func TestPlanOrdersRowsDeterministically(t *testing.T) {
	t.Parallel()

	snap := snapshotOf(t, func(s *aggregate.Store) {
		for _, id := range []int64{30, 4, 17} {
			require.NoError(t, s.Upsert(catalog.Item{SeriesID: id, Title: "x"}, "mon"))
		}
	})

	changes := Plan(snap, nil, "kakaopage")
	require.Len(t, changes.Inserts, 3)
	require.Equal(t, "17", changes.Inserts[0].ContentID)
	require.Equal(t, "30", changes.Inserts[1].ContentID)
	require.Equal(t, "4", changes.Inserts[2].ContentID)
}
