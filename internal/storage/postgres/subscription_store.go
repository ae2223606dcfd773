package postgres

import (
	"context"
	"fmt"

	"github.com/ending-signal/crawler/internal/storage"
)

// SubscriptionStore implements storage.SubscriptionStore on Postgres. The
// pipeline only ever reads subscriptions; their CRUD lives elsewhere.
type SubscriptionStore struct {
	db DB
}

// NewSubscriptionStore wraps an existing pool or mock.
func NewSubscriptionStore(db DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

// ListByContentIDs returns every subscription for the source touching one of
// the given content ids.
func (s *SubscriptionStore) ListByContentIDs(ctx context.Context, source string, contentIDs []string) ([]storage.Subscription, error) {
	if len(contentIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT email, content_id FROM subscriptions WHERE source = $1 AND content_id = ANY($2)`,
		source, contentIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var out []storage.Subscription
	for rows.Next() {
		var sub storage.Subscription
		if err := rows.Scan(&sub.Email, &sub.ContentID); err != nil {
			return nil, fmt.Errorf("scan subscription row: %w", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return out, nil
}
