package fetcher

import "github.com/ending-signal/crawler/internal/catalog"

// Query parameters fixed by the remote catalog's webtoon section.
const (
	categoryUID        = 10
	screenUID          = 52
	layoutType         = "Layout"
	completedSectionID = "static-landing-Genre-section-Layout-10-0-view"
	completedSortType  = "view"
)

const queryDayOfWeek = `
query staticLandingDayOfWeekLayout($queryInput: StaticLandingDayOfWeekParamInput!) {
  staticLandingDayOfWeekLayout(input: $queryInput) {
    ...Layout
  }
}
fragment Layout on Layout {
  id, type, sections { ...Section }, screenUid
}
fragment Section on Section {
  id, uid, type, title
  ... on StaticLandingDayOfWeekSection {
    isEnd, totalCount
    items: groups {
      items {
        id, title, thumbnail, badgeList, statusBadge, ageGrade, seriesId
        authors { name, type }
      }
    }
  }
}
`

const queryGenreSection = `
query staticLandingGenreSection($sectionId: ID!, $param: StaticLandingGenreParamInput!) {
  staticLandingGenreSection(sectionId: $sectionId, param: $param) {
    ... on StaticLandingGenreSection {
      isEnd, totalCount
      items: groups {
        items {
          id, title, thumbnail, badgeList, statusBadge, ageGrade, seriesId
          authors { name, type }
        }
      }
    }
  }
}
`

// Listing identifies one paginated view of the remote catalog: a weekday tab
// or the completed-titles section.
type Listing struct {
	Weekday   string
	Completed bool
}

// WeekdayListing returns the listing for a weekday tab key ("mon".."sun").
func WeekdayListing(day string) Listing {
	return Listing{Weekday: day}
}

// CompletedListing is the completed-titles listing.
var CompletedListing = Listing{Completed: true}

// Name labels the listing for logs and metrics.
func (l Listing) Name() string {
	if l.Completed {
		return "completed"
	}
	return l.Weekday
}

// payload builds the {query, variables} request body for one page.
func (l Listing) payload(page, size int) map[string]any {
	if l.Completed {
		return map[string]any{
			"query": queryGenreSection,
			"variables": map[string]any{
				"sectionId": completedSectionID,
				"param": map[string]any{
					"categoryUid": categoryUID,
					"page":        page,
					"size":        size,
					"sortType":    completedSortType,
					"isComplete":  true,
				},
			},
		}
	}
	return map[string]any{
		"query": queryDayOfWeek,
		"variables": map[string]any{
			"queryInput": map[string]any{
				"categoryUid": categoryUID,
				"dayTabUid":   catalog.WeekdayTabIDs[l.Weekday],
				"type":        layoutType,
				"screenUid":   screenUID,
				"page":        page,
				"size":        size,
			},
		},
	}
}

// The item lists sit under query-specific nesting. Missing keys unwrap to an
// empty list; only a missing data envelope counts as malformed.
//
// The documents above request isEnd and totalCount so they stay byte-for-byte
// compatible with the documents the remote site issues itself, but neither
// field is decoded here: pagination stops on the first empty item list, which
// holds even when the server reports totals inconsistently across pages.
type itemGroup struct {
	Items []catalog.Item `json:"items"`
}

type envelope struct {
	Data *struct {
		DayOfWeek *struct {
			Sections []struct {
				Groups []itemGroup `json:"items"`
			} `json:"sections"`
		} `json:"staticLandingDayOfWeekLayout"`
		Genre *struct {
			Groups []itemGroup `json:"items"`
		} `json:"staticLandingGenreSection"`
	} `json:"data"`
}

// unwrap flattens the listing-specific nesting into a single item list.
func (e envelope) unwrap(l Listing) []catalog.Item {
	if e.Data == nil {
		return nil
	}
	if l.Completed {
		if e.Data.Genre == nil || len(e.Data.Genre.Groups) == 0 {
			return nil
		}
		return e.Data.Genre.Groups[0].Items
	}
	if e.Data.DayOfWeek == nil || len(e.Data.DayOfWeek.Sections) == 0 {
		return nil
	}
	groups := e.Data.DayOfWeek.Sections[0].Groups
	if len(groups) == 0 {
		return nil
	}
	return groups[0].Items
}
