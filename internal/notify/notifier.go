package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ending-signal/crawler/internal/aggregate"
	"github.com/ending-signal/crawler/internal/catalog"
	"github.com/ending-signal/crawler/internal/metrics"
	"github.com/ending-signal/crawler/internal/storage"
)

// Batch groups one subscriber's newly finished titles into a single email.
type Batch struct {
	Email  string
	Titles []string
}

// Report summarizes a notification pass for the run report.
type Report struct {
	NewlyFinished int
	UsersNotified int
	Details       []string
}

// Notifier resolves subscribers for newly finished titles and sends one
// digest email per user.
type Notifier struct {
	subs   storage.SubscriptionStore
	mailer Mailer
	source string
	logger *zap.Logger
}

// New builds a Notifier. A nil mailer means the transport is unconfigured
// and Run degrades to detection only.
func New(subs storage.SubscriptionStore, mailer Mailer, source string, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{subs: subs, mailer: mailer, source: source, logger: logger}
}

// DetectNewlyFinished returns, in ascending id order, the ids whose persisted
// status before the run was anything but finished and whose crawled status is
// finished. Ids never persisted before do not qualify, even when first seen
// already finished.
func DetectNewlyFinished(prior map[string]catalog.Status, snap aggregate.Snapshot) []string {
	var ids []string
	for id, status := range prior {
		if status == catalog.StatusFinished {
			continue
		}
		if _, done := snap.Finished[id]; done {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Run detects newly finished titles against the pre-run statuses and fans out
// emails. Send failures abort the remaining batch but never fail the run; the
// returned error is reserved for subscriber lookup failures.
func (n *Notifier) Run(ctx context.Context, prior map[string]catalog.Status, snap aggregate.Snapshot) (Report, error) {
	ids := DetectNewlyFinished(prior, snap)
	report := Report{NewlyFinished: len(ids)}
	if len(ids) == 0 {
		n.logger.Info("no newly finished titles")
		return report, nil
	}
	n.logger.Info("newly finished titles detected", zap.Int("count", len(ids)))

	subs, err := n.subs.ListByContentIDs(ctx, n.source, ids)
	if err != nil {
		return report, fmt.Errorf("list subscribers: %w", err)
	}

	byTitle := subscriberCounts(subs, ids)
	batches := buildBatches(subs, snap, ids)

	sent := 0
	if len(batches) > 0 {
		if n.mailer == nil {
			n.logger.Warn("mail transport unconfigured, skipping notifications",
				zap.Int("batches", len(batches)))
			report.Details = append(report.Details, "error: "+ErrUnconfigured.Error())
		} else {
			for _, batch := range batches {
				if err := n.mailer.Send(ctx, render(batch)); err != nil {
					n.logger.Error("send failed, aborting remaining batches",
						zap.String("email", batch.Email),
						zap.Int("remaining", len(batches)-sent-1),
						zap.Error(err))
					report.Details = append(report.Details, "error: "+err.Error())
					metrics.RecordNotifications(sent, len(batches)-sent)
					report.UsersNotified = sent
					report.Details = append(titleDetails(ids, snap, byTitle), report.Details...)
					return report, nil
				}
				sent++
			}
			metrics.RecordNotifications(sent, 0)
		}
	}
	report.UsersNotified = sent
	report.Details = append(titleDetails(ids, snap, byTitle), report.Details...)
	return report, nil
}

// buildBatches groups subscriptions into one batch per email, titles ordered
// by ascending content id, batches ordered by email.
func buildBatches(subs []storage.Subscription, snap aggregate.Snapshot, ids []string) []Batch {
	wanted := make(map[string]map[string]struct{})
	for _, sub := range subs {
		set, ok := wanted[sub.Email]
		if !ok {
			set = make(map[string]struct{})
			wanted[sub.Email] = set
		}
		set[sub.ContentID] = struct{}{}
	}

	batches := make([]Batch, 0, len(wanted))
	for email, set := range wanted {
		var titles []string
		for _, id := range ids {
			if _, ok := set[id]; ok {
				titles = append(titles, snap.Title(id))
			}
		}
		if len(titles) > 0 {
			batches = append(batches, Batch{Email: email, Titles: titles})
		}
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].Email < batches[j].Email })
	return batches
}

func subscriberCounts(subs []storage.Subscription, ids []string) map[string]int {
	finished := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		finished[id] = struct{}{}
	}
	counts := make(map[string]int)
	for _, sub := range subs {
		if _, ok := finished[sub.ContentID]; ok {
			counts[sub.ContentID]++
		}
	}
	return counts
}

func titleDetails(ids []string, snap aggregate.Snapshot, counts map[string]int) []string {
	details := make([]string, 0, len(ids))
	for _, id := range ids {
		title := snap.Title(id)
		if c := counts[id]; c > 0 {
			details = append(details, fmt.Sprintf("%q: notified %d subscriber(s)", title, c))
		} else {
			details = append(details, fmt.Sprintf("%q: no subscribers", title))
		}
	}
	return details
}

func render(batch Batch) Message {
	subject := fmt.Sprintf("Completion notice: %q has finished", batch.Titles[0])
	if len(batch.Titles) > 1 {
		subject = fmt.Sprintf("Completion notice: %q and %d more titles have finished",
			batch.Titles[0], len(batch.Titles)-1)
	}

	var body strings.Builder
	body.WriteString("Hello from Ending Signal!\n\n")
	body.WriteString("Titles you subscribe to have finished:\n\n")
	for _, title := range batch.Titles {
		fmt.Fprintf(&body, "- %s\n", title)
	}
	body.WriteString("\nTime to start the binge read. Thank you!\n")

	return Message{To: batch.Email, Subject: subject, Body: body.String()}
}
