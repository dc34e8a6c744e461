// Package ingest loads raw activity events from JSONL files into the raw
// event log.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/papercomputeco/tracks/pkg/events"
	"github.com/papercomputeco/tracks/pkg/logger"
	"github.com/papercomputeco/tracks/pkg/storage"
)

// DefaultBatchSize is the number of events inserted per storage call.
const DefaultBatchSize = 500

// Options configures ingest behavior.
type Options struct {
	// DryRun parses and validates without writing.
	DryRun bool

	// BatchSize defaults to DefaultBatchSize.
	BatchSize int

	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Ingester writes parsed events to an event sink.
type Ingester struct {
	sink    storage.EventSink
	options Options
}

// NewIngester creates an Ingester writing to sink.
func NewIngester(sink storage.EventSink, opts Options) *Ingester {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Ingester{sink: sink, options: opts}
}

// Run ingests every JSONL file named by paths. Directories are scanned
// recursively. Rejected lines are reported in the result, not as errors.
func (in *Ingester) Run(ctx context.Context, paths []string) (*Result, error) {
	files, err := Expand(paths)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve inputs: %w", err)
	}

	result := &Result{Files: len(files)}
	for _, f := range files {
		evs, bad, err := ParseFile(f)
		if err != nil {
			return result, err
		}
		for _, b := range bad {
			in.options.Logger.Warn("rejected record", "path", b.Path, "line", b.Line, "error", b.Err)
		}
		result.Rejected = append(result.Rejected, bad...)
		result.Records += len(evs) + len(bad)

		if err := in.Insert(ctx, evs, result); err != nil {
			return result, fmt.Errorf("ingesting %s: %w", f, err)
		}
	}

	return result, nil
}

// Insert writes evs in batches and accumulates counts into result.
func (in *Ingester) Insert(ctx context.Context, evs []*events.Event, result *Result) error {
	if in.options.DryRun {
		return nil
	}

	for start := 0; start < len(evs); start += in.options.BatchSize {
		end := min(start+in.options.BatchSize, len(evs))
		batch := evs[start:end]

		n, err := in.sink.InsertEvents(ctx, batch, in.options.Now())
		if err != nil {
			return err
		}
		result.Inserted += n
		result.Duplicate += len(batch) - n
	}

	in.options.Logger.Debug("inserted events", "count", len(evs))
	return nil
}
