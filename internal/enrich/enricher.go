package enrich

import (
	"context"
	"sync"
	"time"

	"github.com/italolelis/media_archiver/internal/api"
	"github.com/italolelis/media_archiver/internal/logctx"
	"github.com/italolelis/media_archiver/internal/ratelimit"
	"github.com/italolelis/media_archiver/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

// Client is the slice of the API surface the enricher needs.
type Client interface {
	GetVideoCounts(ctx context.Context, videoID string) (*api.VideoCounts, error)
	GetVideoDetails(ctx context.Context, videoID string) (*api.VideoDetails, error)
	GetVideoMedia(ctx context.Context, videoID string) (*api.VideoMedia, error)
}

// Result holds the supplementary attributes fetched for one item. Zero
// values mean the corresponding phase failed or returned nothing; a Result
// exists for every requested ID regardless.
type Result struct {
	ItemID       string   `json:"item_id"`
	LikeCount    int64    `json:"like_count"`
	DislikeCount int64    `json:"dislike_count"`
	ViewCount    int64    `json:"view_count"`
	MediaURL     string   `json:"media_url"`
	MediaType    string   `json:"media_type"`
	Tags         []string `json:"tags"`
}

// ItemStats are the engagement counters on a caller's base record that a
// Result merges into.
type ItemStats struct {
	LikeCount    int64 `json:"like_count"`
	DislikeCount int64 `json:"dislike_count"`
	ViewCount    int64 `json:"view_count"`
}

// ParallelEnricher fills in engagement counters, tags, and media locators
// for batches of items. Work runs in two phases across a bounded worker
// pool; phase one covers counts and tags, phase two the media locator.
type ParallelEnricher struct {
	client          Client
	limiter         *ratelimit.Limiter
	tel             *telemetry.Telemetry
	maxWorkers      int
	relaxedInterval time.Duration
}

func New(client Client, limiter *ratelimit.Limiter, relaxedInterval time.Duration, maxWorkers int, tel *telemetry.Telemetry) *ParallelEnricher {
	if maxWorkers <= 0 {
		maxWorkers = 5
	}

	return &ParallelEnricher{
		client:          client,
		limiter:         limiter,
		tel:             tel,
		maxWorkers:      maxWorkers,
		relaxedInterval: relaxedInterval,
	}
}

// PoolSize bounds the worker count by the batch size, so small batches do
// not spin up idle workers.
func PoolSize(maxWorkers, n int) int {
	if n < maxWorkers {
		return n
	}

	return maxWorkers
}

// Enrich fetches supplementary attributes for every ID in the batch. The
// returned map always has one entry per requested ID; items whose calls
// failed keep zero-valued fields. Single-item failures never abort the
// batch.
//
// The shared request gate is relaxed for the duration of the batch: the
// remote limit is per-minute, not per-call, and enrichment bursts are
// expected. The previous interval is restored on every exit path.
func (e *ParallelEnricher) Enrich(ctx context.Context, itemIDs []string) map[string]Result {
	logger := logctx.LoggerFromContext(ctx)

	results := make(map[string]Result, len(itemIDs))
	for _, id := range itemIDs {
		results[id] = Result{ItemID: id}
	}

	if len(itemIDs) == 0 {
		return results
	}

	prev := e.limiter.SetInterval(e.relaxedInterval)
	defer e.limiter.SetInterval(prev)

	workers := PoolSize(e.maxWorkers, len(itemIDs))

	logger.Info("enriching batch", "item_count", len(itemIDs), "workers", workers)

	var mu sync.Mutex

	e.runPhase(ctx, "counts", workers, itemIDs, func(ctx context.Context, id string) error {
		counts, err := e.client.GetVideoCounts(ctx, id)
		if err != nil {
			return err
		}

		details, err := e.client.GetVideoDetails(ctx, id)

		mu.Lock()
		r := results[id]
		r.LikeCount = counts.LikeCount
		r.DislikeCount = counts.DislikeCount
		r.ViewCount = counts.ViewCount

		if err == nil {
			r.Tags = details.Hashtags
			if details.ViewCount > r.ViewCount {
				r.ViewCount = details.ViewCount
			}
		}

		results[id] = r
		mu.Unlock()

		return err
	})

	e.runPhase(ctx, "media", workers, itemIDs, func(ctx context.Context, id string) error {
		media, err := e.client.GetVideoMedia(ctx, id)
		if err != nil {
			return err
		}

		mu.Lock()
		r := results[id]
		r.MediaURL = media.MediaURL
		r.MediaType = media.MediaType
		results[id] = r
		mu.Unlock()

		return nil
	})

	return results
}

// runPhase dispatches one call per item across the worker pool and drains
// it fully before returning. Per-item errors are logged and counted, never
// propagated.
func (e *ParallelEnricher) runPhase(ctx context.Context, phase string, workers int, itemIDs []string, fn func(ctx context.Context, id string) error) {
	logger := logctx.LoggerFromContext(ctx)

	wg, ctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, workers)

	for _, id := range itemIDs {
		id := id
		sem <- struct{}{}

		wg.Go(func() error {
			defer func() { <-sem }() // release the slot

			if err := fn(ctx, id); err != nil {
				logger.Warn("enrichment call failed", "phase", phase, "item_id", id, "err", err)
				e.tel.RecordEnrichment(ctx, phase, "failed")

				return nil // partial failure leaves defaults in place
			}

			e.tel.RecordEnrichment(ctx, phase, "ok")

			return nil
		})
	}

	wg.Wait() //nolint:errcheck // workers always return nil
}

// Apply merges a Result into the base counters. Counts only overwrite when
// the fetched value is non-zero, and the view count only moves forward:
// the remote side is eventually consistent, so a smaller fresh value must
// not clobber a larger one already recorded.
func Apply(base *ItemStats, r Result) {
	if r.LikeCount != 0 {
		base.LikeCount = r.LikeCount
	}

	if r.DislikeCount != 0 {
		base.DislikeCount = r.DislikeCount
	}

	if r.ViewCount > base.ViewCount {
		base.ViewCount = r.ViewCount
	}
}
