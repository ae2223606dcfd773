// Package pipeline orchestrates a full catalog run: concurrent weekday
// crawls, the completed listing, snapshot finalization, notification fan-out
// against pre-run statuses, and the diff sync.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ending-signal/crawler/internal/aggregate"
	"github.com/ending-signal/crawler/internal/archive"
	"github.com/ending-signal/crawler/internal/catalog"
	"github.com/ending-signal/crawler/internal/clock"
	"github.com/ending-signal/crawler/internal/crawl"
	"github.com/ending-signal/crawler/internal/diffsync"
	"github.com/ending-signal/crawler/internal/fetcher"
	"github.com/ending-signal/crawler/internal/metrics"
	"github.com/ending-signal/crawler/internal/notify"
	"github.com/ending-signal/crawler/internal/storage"
)

// Report is the outcome of one run, kept for the ops API and logs.
type Report struct {
	RunID           string        `json:"run_id"`
	Started         time.Time     `json:"started"`
	Duration        time.Duration `json:"duration_ns"`
	ItemsDiscovered int           `json:"items_discovered"`
	Inserted        int           `json:"inserted"`
	Updated         int           `json:"updated"`
	NewlyFinished   int           `json:"newly_finished"`
	UsersNotified   int           `json:"users_notified"`
	Details         []string      `json:"details,omitempty"`
	AbortedListings []string      `json:"aborted_listings,omitempty"`
	Error           string        `json:"error,omitempty"`
}

// Params wires a Pipeline. Archive, Clock, and Logger may be nil.
type Params struct {
	Fetcher       fetcher.PageFetcher
	Contents      storage.ContentStore
	Notifier      *notify.Notifier
	Syncer        *diffsync.Engine
	Archive       archive.Provider
	ArchivePrefix string
	Source        string
	Crawl         crawl.Config
	Clock         clock.Clock
	Logger        *zap.Logger
}

// Pipeline runs the ingestion flow. At most one run executes at a time.
type Pipeline struct {
	p Params

	mu      sync.Mutex
	running bool
	last    *Report
}

func New(p Params) *Pipeline {
	if p.Archive == nil {
		p.Archive = archive.NoOp{}
	}
	if p.Clock == nil {
		p.Clock = clock.System{}
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	return &Pipeline{p: p}
}

// Run executes one full crawl-notify-sync cycle and records the report.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	if !p.tryAcquire() {
		return Report{}, ErrRunInProgress
	}
	defer p.release()

	return p.execute(ctx)
}

// execute performs one run. Callers must hold the running flag.
func (p *Pipeline) execute(ctx context.Context) (Report, error) {
	started := p.p.Clock.Now()
	report := Report{RunID: uuid.NewString(), Started: started}
	logger := p.p.Logger.With(zap.String("run_id", report.RunID))
	logger.Info("run started", zap.String("source", p.p.Source))

	err := p.run(ctx, logger, &report)
	report.Duration = p.p.Clock.Now().Sub(started)
	outcome := "success"
	if err != nil {
		outcome = "error"
		report.Error = err.Error()
		logger.Error("run failed", zap.Error(err), zap.Duration("elapsed", report.Duration))
	} else {
		logger.Info("run finished",
			zap.Int("items", report.ItemsDiscovered),
			zap.Int("inserted", report.Inserted),
			zap.Int("updated", report.Updated),
			zap.Int("newly_finished", report.NewlyFinished),
			zap.Int("users_notified", report.UsersNotified),
			zap.Duration("elapsed", report.Duration),
		)
	}
	metrics.RecordRun(outcome, report.Duration)

	p.setLast(report)
	return report, err
}

func (p *Pipeline) run(ctx context.Context, logger *zap.Logger, report *Report) error {
	prior, err := p.p.Contents.LoadStatuses(ctx, p.p.Source)
	if err != nil {
		return fmt.Errorf("load prior statuses: %w", err)
	}

	store := aggregate.New()
	results := crawl.RunWeekdays(ctx, p.p.Fetcher, store, p.p.Crawl, logger)
	completion := crawl.NewCompletionCrawler(p.p.Fetcher, store, p.p.Crawl, logger).Run(ctx)
	results = append(results, completion)
	for _, res := range results {
		if res.Aborted {
			report.AbortedListings = append(report.AbortedListings, res.Listing)
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("crawl interrupted: %w", err)
	}

	snapshot, err := store.Finalize()
	if err != nil {
		return fmt.Errorf("finalize aggregate: %w", err)
	}
	report.ItemsDiscovered = len(snapshot.Records)

	p.archiveSnapshot(ctx, logger, report.RunID, snapshot)

	// Notification compares against statuses persisted before this run, so it
	// must precede the sync.
	notifyReport, err := p.p.Notifier.Run(ctx, prior, snapshot)
	report.NewlyFinished = notifyReport.NewlyFinished
	report.UsersNotified = notifyReport.UsersNotified
	report.Details = notifyReport.Details
	if err != nil {
		// Best effort: a failed fan-out must not block persisting the crawl.
		logger.Warn("notification pass failed", zap.Error(err))
		report.Details = append(report.Details, "error: "+err.Error())
	}

	inserted, updated, err := p.p.Syncer.Sync(ctx, snapshot)
	if err != nil {
		return fmt.Errorf("sync snapshot: %w", err)
	}
	report.Inserted = inserted
	report.Updated = updated
	metrics.RecordSync(report.ItemsDiscovered, inserted, updated)
	return nil
}

// archiveSnapshot saves the finalized aggregate as JSON. Failures are logged
// and never fail the run.
func (p *Pipeline) archiveSnapshot(ctx context.Context, logger *zap.Logger, runID string, snapshot aggregate.Snapshot) {
	if _, noop := p.p.Archive.(archive.NoOp); noop {
		return
	}

	statuses := make(map[string]catalog.Status, len(snapshot.Records))
	for id := range snapshot.Records {
		statuses[id] = snapshot.StatusOf(id)
	}
	payload, err := json.Marshal(struct {
		RunID    string                           `json:"run_id"`
		Source   string                           `json:"source"`
		Records  map[string]catalog.ContentRecord `json:"records"`
		Statuses map[string]catalog.Status        `json:"statuses"`
	}{runID, p.p.Source, snapshot.Records, statuses})
	if err != nil {
		logger.Warn("encode snapshot for archive", zap.Error(err))
		return
	}

	name := archive.ObjectName(p.p.ArchivePrefix, p.p.Source, runID, p.p.Clock.Now(), payload)
	if err := p.p.Archive.Save(ctx, name, payload); err != nil {
		logger.Warn("archive snapshot", zap.String("object", name), zap.Error(err))
		return
	}
	logger.Info("snapshot archived", zap.String("object", name))
}

// ErrRunInProgress rejects overlapping runs.
var ErrRunInProgress = errors.New("a run is already in progress")

// TriggerAsync starts a run in the background. Returns false when a run is
// already executing.
func (p *Pipeline) TriggerAsync() bool {
	if !p.tryAcquire() {
		return false
	}

	go func() {
		defer p.release()
		if _, err := p.execute(context.Background()); err != nil {
			p.p.Logger.Warn("background run failed", zap.Error(err))
		}
	}()
	return true
}

// LastReport returns the most recent run report, if any.
func (p *Pipeline) LastReport() (Report, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return Report{}, false
	}
	return *p.last, true
}

// Running reports whether a run is currently executing.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Pipeline) tryAcquire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return false
	}
	p.running = true
	return true
}

func (p *Pipeline) release() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
}

func (p *Pipeline) setLast(r Report) {
	p.mu.Lock()
	p.last = &r
	p.mu.Unlock()
}
