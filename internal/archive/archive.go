// Package archive persists the raw JSON snapshot of each finalized run to a
// blob store, keeping the application independent of the concrete backend.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path"
	"time"
)

// Provider saves one named blob per run.
type Provider interface {
	Save(ctx context.Context, objectName string, data []byte) error
}

// NoOp discards snapshots. Used when archiving is disabled.
type NoOp struct{}

func (NoOp) Save(_ context.Context, _ string, _ []byte) error {
	return nil
}

// ObjectName builds a collision-free object path from the run id and a short
// content digest, partitioned by source and date.
func ObjectName(prefix, source, runID string, at time.Time, data []byte) string {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])[:12]
	return path.Join(prefix, source, at.UTC().Format("2006/01/02"), runID+"-"+digest+".json")
}
