package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const dayOfWeekPage = `{
  "data": {
    "staticLandingDayOfWeekLayout": {
      "sections": [
        {
          "items": [
            {
              "items": [
                {
                  "seriesId": 123,
                  "title": "Tower Keepers",
                  "thumbnail": "https://img.example/123.png",
                  "badgeList": ["up"],
                  "statusBadge": "",
                  "ageGrade": 0,
                  "authors": [{"name": "Kim", "type": "writer"}]
                }
              ]
            }
          ]
        }
      ]
    }
  }
}`

const genrePage = `{
  "data": {
    "staticLandingGenreSection": {
      "items": [
        {
          "items": [
            {"seriesId": 77, "title": "Closed Book", "statusBadge": ""}
          ]
        }
      ]
    }
  }
}`

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(
		Config{Endpoint: srv.URL, UserAgent: "ending-signal-test", Referer: "https://example.com/"},
		NewRetryPolicy(3, time.Millisecond, 4*time.Millisecond),
		zap.NewNop(),
	)
}

func TestFetchPageDecodesWeekdayListing(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, "ending-signal-test", r.Header.Get("User-Agent"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(dayOfWeekPage))
	})

	items, err := c.FetchPage(context.Background(), WeekdayListing("mon"), 1, 100)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "123", items[0].ContentID())
	require.Equal(t, "Tower Keepers", items[0].Title)
	require.Equal(t, "Kim", items[0].Authors[0].Name)

	vars := gotBody["variables"].(map[string]any)
	input := vars["queryInput"].(map[string]any)
	require.Equal(t, "1", input["dayTabUid"])
	require.Equal(t, float64(1), input["page"])
	require.Equal(t, float64(100), input["size"])
}

func TestFetchPageDecodesCompletedListing(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(genrePage))
	})

	items, err := c.FetchPage(context.Background(), CompletedListing, 3, 100)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "77", items[0].ContentID())

	vars := gotBody["variables"].(map[string]any)
	require.Equal(t, completedSectionID, vars["sectionId"])
	param := vars["param"].(map[string]any)
	require.Equal(t, true, param["isComplete"])
	require.Equal(t, "view", param["sortType"])
}

func TestFetchPageStripsByteOrderMark(t *testing.T) {
	t.Parallel()

	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(append([]byte{0xEF, 0xBB, 0xBF}, []byte(genrePage)...))
	})

	items, err := c.FetchPage(context.Background(), CompletedListing, 1, 100)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestFetchPageMissingNestedKeysIsEmptyPage(t *testing.T) {
	t.Parallel()

	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"staticLandingDayOfWeekLayout":{"sections":[]}}}`))
	})

	items, err := c.FetchPage(context.Background(), WeekdayListing("tue"), 1, 100)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestFetchPageMalformedBodyIsSignaled(t *testing.T) {
	t.Parallel()

	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<!doctype html><html>maintenance</html>`))
	})

	_, err := c.FetchPage(context.Background(), WeekdayListing("wed"), 1, 100)
	var malformed *MalformedResponseError
	require.ErrorAs(t, err, &malformed)
	require.Equal(t, "wed", malformed.Listing)
}

func TestFetchPageMissingDataEnvelopeIsSignaled(t *testing.T) {
	t.Parallel()

	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[{"message":"boom"}]}`))
	})

	_, err := c.FetchPage(context.Background(), CompletedListing, 1, 100)
	var malformed *MalformedResponseError
	require.ErrorAs(t, err, &malformed)
}

func TestFetchPageRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(genrePage))
	})

	items, err := c.FetchPage(context.Background(), CompletedListing, 1, 100)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, int32(3), calls.Load())
}

func TestFetchPageExhaustedRetriesIsPermanent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.FetchPage(context.Background(), WeekdayListing("fri"), 2, 100)
	var permanent *PermanentError
	require.ErrorAs(t, err, &permanent)
	require.Equal(t, 3, permanent.Attempts)
	require.Equal(t, int32(3), calls.Load())

	var transient *TransientError
	require.ErrorAs(t, permanent.Err, &transient)
}
