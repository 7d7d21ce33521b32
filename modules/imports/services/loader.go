package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/destination"
	"github.com/iota-uz/sheet-importer/modules/imports/domain/schema"
	"github.com/iota-uz/sheet-importer/pkg/metrics"
)

const DefaultChunkSize = 2000

// Checkpoint reports whether the load should stop before the next chunk.
type Checkpoint func(ctx context.Context) bool

type Loader struct {
	chunkSize int
	log       *logrus.Entry
}

func NewLoader(chunkSize int, log *logrus.Entry) *Loader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Loader{chunkSize: chunkSize, log: log}
}

func (l *Loader) ChunkSize() int {
	return l.chunkSize
}

// Load inserts rows chunk by chunk and returns how many rows belonged to
// chunks that were handed to the destination successfully. checkpoint runs
// before every chunk; when it returns true the load stops with ErrCancelled.
func (l *Loader) Load(
	ctx context.Context,
	dest destination.Destination,
	ref schema.TableRef,
	cols []schema.ColumnMetadata,
	rows []destination.TypedRow,
	checkpoint Checkpoint,
) (int64, error) {
	m := metrics.Imports()
	total := (len(rows) + l.chunkSize - 1) / l.chunkSize
	log := l.log.WithFields(logrus.Fields{
		"table":  ref.String(),
		"rows":   len(rows),
		"chunks": total,
	})

	var attempted int64
	for idx := 0; idx < total; idx++ {
		if err := ctx.Err(); err != nil {
			return attempted, err
		}
		if checkpoint != nil && checkpoint(ctx) {
			log.WithField("completed_chunks", idx).Info("load cancelled at checkpoint")
			return attempted, fmt.Errorf("%w after %d of %d chunks", ErrCancelled, idx, total)
		}

		lo := idx * l.chunkSize
		hi := min(lo+l.chunkSize, len(rows))
		start := time.Now()
		err := dest.InsertChunk(ctx, ref, cols, rows[lo:hi])
		result := "ok"
		if err != nil {
			result = "error"
		}
		m.ChunkDuration.WithLabelValues(ref.Table, result).Observe(time.Since(start).Seconds())
		if err != nil {
			log.WithError(err).WithField("chunk", idx+1).Error("chunk insert failed")
			return attempted, fmt.Errorf("%w: chunk %d of %d: %w", ErrLoadFailure, idx+1, total, err)
		}
		attempted += int64(hi - lo)
		log.WithFields(logrus.Fields{
			"chunk":    idx + 1,
			"size":     hi - lo,
			"duration": time.Since(start),
		}).Debug("chunk inserted")
	}
	return attempted, nil
}

// Reconcile derives inserted and skipped counts from the per-file row counts
// taken before and after the load.
func Reconcile(before, after, attempted int64) (inserted, skipped int64) {
	inserted = max(0, after-before)
	skipped = max(0, attempted-inserted)
	return inserted, skipped
}
