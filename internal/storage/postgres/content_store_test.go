package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ending-signal/crawler/internal/catalog"
	"github.com/ending-signal/crawler/internal/storage"
)

func TestLoadBySourceDecodesMeta(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT content_id, content_type, title, status, meta FROM contents").
		WithArgs("kakaopage").
		WillReturnRows(pgxmock.NewRows([]string{"content_id", "content_type", "title", "status", "meta"}).
			AddRow("10", "webtoon", "Tower Keepers", "ongoing", []byte(`{"authors":["Kim"],"weekdays":["mon","tue"],"thumbnail_url":"t"}`)).
			AddRow("11", "webtoon", "Closed Book", "finished", []byte(nil)))

	store := NewContentStore(mock, zap.NewNop())
	rows, err := store.LoadBySource(context.Background(), "kakaopage")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, catalog.StatusOngoing, rows["10"].Status)
	require.Equal(t, []string{"Kim"}, rows["10"].Meta.Authors)
	require.Equal(t, []string{"mon", "tue"}, rows["10"].Meta.Weekdays)
	require.Equal(t, storage.Meta{}, rows["11"].Meta)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadStatuses(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT content_id, status FROM contents").
		WithArgs("kakaopage").
		WillReturnRows(pgxmock.NewRows([]string{"content_id", "status"}).
			AddRow("1", "ongoing").
			AddRow("2", "finished"))

	store := NewContentStore(mock, zap.NewNop())
	statuses, err := store.LoadStatuses(context.Background(), "kakaopage")
	require.NoError(t, err)
	require.Equal(t, map[string]catalog.Status{
		"1": catalog.StatusOngoing,
		"2": catalog.StatusFinished,
	}, statuses)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyWritesUpdatesThenInserts(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	changes := storage.ChangeSet{
		Updates: []storage.ContentRow{{
			ContentID:   "1",
			Source:      "kakaopage",
			ContentType: "webtoon",
			Title:       "Tower Keepers",
			Status:      catalog.StatusFinished,
			Meta:        storage.Meta{Authors: []string{"Kim"}, Weekdays: []string{"mon"}, ThumbnailURL: "t"},
		}},
		Inserts: []storage.ContentRow{{
			ContentID:   "2",
			Source:      "kakaopage",
			ContentType: "webtoon",
			Title:       "New Arrival",
			Status:      catalog.StatusOngoing,
			Meta:        storage.Meta{Weekdays: []string{"fri"}},
		}},
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE contents").
		WithArgs("webtoon", "Tower Keepers", "finished",
			[]byte(`{"authors":["Kim"],"weekdays":["mon"],"thumbnail_url":"t"}`),
			"1", "kakaopage").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO contents").
		WithArgs("2", "kakaopage", "webtoon", "New Arrival", "ongoing",
			[]byte(`{"authors":null,"weekdays":["fri"],"thumbnail_url":""}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	store := NewContentStore(mock, zap.NewNop())
	require.NoError(t, store.Apply(context.Background(), changes))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	changes := storage.ChangeSet{
		Inserts: []storage.ContentRow{{
			ContentID:   "3",
			Source:      "kakaopage",
			ContentType: "webtoon",
			Title:       "Broken",
			Status:      catalog.StatusOngoing,
		}},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO contents").
		WithArgs("3", "kakaopage", "webtoon", "Broken", "ongoing",
			[]byte(`{"authors":null,"weekdays":null,"thumbnail_url":""}`)).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	store := NewContentStore(mock, zap.NewNop())
	err = store.Apply(context.Background(), changes)
	require.Error(t, err)
	require.Contains(t, err.Error(), "insert content 3")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyEmptyChangeSetIsNoOp(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewContentStore(mock, zap.NewNop())
	require.NoError(t, store.Apply(context.Background(), storage.ChangeSet{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListSubscriptionsByContentIDs(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ids := []string{"1", "2"}
	mock.ExpectQuery("SELECT email, content_id FROM subscriptions").
		WithArgs("kakaopage", ids).
		WillReturnRows(pgxmock.NewRows([]string{"email", "content_id"}).
			AddRow("a@example.com", "1").
			AddRow("a@example.com", "2").
			AddRow("b@example.com", "2"))

	store := NewSubscriptionStore(mock)
	subs, err := store.ListByContentIDs(context.Background(), "kakaopage", ids)
	require.NoError(t, err)
	require.Len(t, subs, 3)
	require.Equal(t, storage.Subscription{Email: "a@example.com", ContentID: "1"}, subs[0])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListSubscriptionsEmptyIDSet(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewSubscriptionStore(mock)
	subs, err := store.ListByContentIDs(context.Background(), "kakaopage", nil)
	require.NoError(t, err)
	require.Empty(t, subs)
	require.NoError(t, mock.ExpectationsWereMet())
}
