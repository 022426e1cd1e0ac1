package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/media_archiver/internal/api"
	"github.com/italolelis/media_archiver/internal/download/progress"
	"github.com/italolelis/media_archiver/internal/logctx"
	"github.com/italolelis/media_archiver/internal/storage"
	"github.com/italolelis/media_archiver/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

const (
	dirPerm          = 0755
	chunkSize        = 8 * 1024
	progressInterval = 10 * 1024 * 1024 // 10MB between progress logs
	errorChanBuffer  = 16
)

// Task is one unit of download work, constructed by the caller from an
// enriched record.
type Task struct {
	SourceURL string    `json:"url"`
	ItemID    string    `json:"item_id"`
	Kind      MediaKind `json:"media_kind"`
	Title     string    `json:"title"`
}

// Results maps item id -> media kind -> local path. A nil path marks a task
// that failed or was invalid; entries are never missing.
type Results map[string]map[MediaKind]*string

// Repository is the persistence the manager needs for its dedup database.
type Repository interface {
	storage.ContentReadRepository
	storage.ContentWriteRepository
}

// Config tunes a Manager.
type Config struct {
	BaseDir         string
	ThumbnailFolder string
	VideoFolder     string
	ForceRedownload bool
	MaxConcurrent   int
	FlushEvery      int // successful downloads between database flushes
	Timeout         time.Duration
}

type action int

const (
	actionFetch action = iota
	actionReuse
	actionSkip
)

type resolution struct {
	path   string
	action action
}

// Manager downloads media content-addressably: each unique normalized URL
// is fetched at most once, and every caller asking for that content gets
// the same local path back.
type Manager struct {
	cfg    Config
	client *http.Client
	repo   Repository
	tel    *telemetry.Telemetry

	// mu guards the index, path claims, dirty set, and counters. It is
	// never held across a network call.
	mu         sync.Mutex
	index      map[string]storage.ContentRecord // content hash -> record
	byPath     map[string]string                // file path -> content hash
	dirty      map[string]storage.ContentRecord
	inflight   map[string]chan struct{}
	sinceFlush int
	stats      Stats

	OnDownloadError chan Task
}

// NewManager creates the download directory layout, loads the persisted
// dedup database, and drops entries whose files have gone missing.
func NewManager(ctx context.Context, cfg Config, repo Repository, tel *telemetry.Telemetry) (*Manager, error) {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}

	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = 25
	}

	for _, dir := range []string{
		cfg.BaseDir,
		filepath.Join(cfg.BaseDir, cfg.ThumbnailFolder),
		filepath.Join(cfg.BaseDir, cfg.VideoFolder),
	} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return nil, &api.ConfigurationError{Reason: fmt.Sprintf("failed to create download directory %s", dir), Err: err}
		}
	}

	m := &Manager{
		cfg:             cfg,
		client:          &http.Client{Timeout: cfg.Timeout},
		repo:            repo,
		tel:             tel,
		index:           make(map[string]storage.ContentRecord),
		byPath:          make(map[string]string),
		dirty:           make(map[string]storage.ContentRecord),
		inflight:        make(map[string]chan struct{}),
		OnDownloadError: make(chan Task, errorChanBuffer),
	}

	if err := m.loadDatabase(ctx); err != nil {
		return nil, err
	}

	return m, nil
}

// loadDatabase reads the persisted records, validating that each referenced
// file still exists and is non-empty. Invalid entries are dropped and the
// cleaned database rewritten.
func (m *Manager) loadDatabase(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	records, err := m.repo.GetRecords()
	if err != nil {
		return &api.ConfigurationError{Reason: "failed to load download database", Err: err}
	}

	var stale []string

	for _, record := range records {
		if !fileValid(record.FilePath) {
			stale = append(stale, record.ContentHash)

			continue
		}

		m.index[record.ContentHash] = record
		m.byPath[record.FilePath] = record.ContentHash
	}

	if len(stale) > 0 {
		logger.Info("dropping stale download records", "count", len(stale))

		if err := m.repo.DeleteByHash(stale); err != nil {
			logger.Error("failed to drop stale records", "err", err)
		}
	}

	logger.Info("download database loaded", "unique_content", len(m.index))

	return nil
}

// FetchAll downloads a batch of tasks across a bounded worker pool and
// returns the nested path map. Per-task failures degrade to nil entries;
// the batch itself never fails.
func (m *Manager) FetchAll(ctx context.Context, tasks []Task) Results {
	logger := logctx.LoggerFromContext(ctx)

	results := make(Results)

	var resultsMu sync.Mutex

	record := func(task Task, path *string) {
		resultsMu.Lock()
		defer resultsMu.Unlock()

		if results[task.ItemID] == nil {
			results[task.ItemID] = make(map[MediaKind]*string)
		}

		results[task.ItemID][task.Kind] = path
	}

	var valid []Task

	for _, task := range tasks {
		if _, err := NormalizeURL(task.SourceURL); err != nil {
			logger.Warn("skipping task with invalid url", "item_id", task.ItemID, "err", err)
			record(task, nil)

			continue
		}

		valid = append(valid, task)
	}

	if len(valid) == 0 {
		return results
	}

	logger.Info("starting downloads", "task_count", len(valid), "workers", m.cfg.MaxConcurrent)

	wg, ctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, m.cfg.MaxConcurrent)

	for i := range valid {
		task := valid[i]
		sem <- struct{}{}

		wg.Go(func() error {
			defer func() { <-sem }() // release the slot

			path, err := m.fetchOne(ctx, task)
			if err != nil {
				logger.Error("download failed", "item_id", task.ItemID, "url", task.SourceURL, "err", err)
				record(task, nil)

				return nil // a single task never aborts the batch
			}

			record(task, &path)

			return nil
		})
	}

	wg.Wait() //nolint:errcheck // workers always return nil

	return results
}

// fetchOne resolves the task's path and performs a network fetch only when
// resolution says one is needed. Concurrent requests for the same content
// hash coalesce onto a single fetch.
func (m *Manager) fetchOne(ctx context.Context, task Task) (string, error) {
	hash, err := ContentHash(task.SourceURL)
	if err != nil {
		return "", err
	}

	for {
		m.mu.Lock()

		if ch, ok := m.inflight[hash]; ok {
			m.mu.Unlock()

			select {
			case <-ch:
			case <-ctx.Done():
				return "", ctx.Err()
			}

			continue // re-resolve against the now-updated index
		}

		res := m.resolveLocked(ctx, task, hash)

		switch res.action {
		case actionReuse:
			m.stats.Total++
			m.stats.Reused++
			m.mu.Unlock()

			m.tel.RecordDownload(ctx, "reused", 0, 0)
			logctx.LoggerFromContext(ctx).Debug("reusing downloaded content", "item_id", task.ItemID, "path", res.path)

			return res.path, nil

		case actionSkip:
			m.adoptLocked(task, hash, res.path)
			m.mu.Unlock()

			m.tel.RecordDownload(ctx, "skipped", 0, 0)
			logctx.LoggerFromContext(ctx).Debug("file already present, skipping fetch", "item_id", task.ItemID, "path", res.path)

			return res.path, nil
		}

		ch := make(chan struct{})
		m.inflight[hash] = ch
		m.byPath[res.path] = hash
		m.mu.Unlock()

		path, err := m.fetch(ctx, task, hash, res.path)

		m.mu.Lock()
		delete(m.inflight, hash)
		close(ch)

		if err != nil {
			if m.byPath[res.path] == hash {
				if _, recorded := m.index[hash]; !recorded {
					delete(m.byPath, res.path)
				}
			}
		}
		m.mu.Unlock()

		return path, err
	}
}

// resolveLocked decides what to do for a task. Called with m.mu held.
func (m *Manager) resolveLocked(ctx context.Context, task Task, hash string) resolution {
	if record, ok := m.index[hash]; ok && !m.cfg.ForceRedownload {
		if fileValid(record.FilePath) {
			return resolution{path: record.FilePath, action: actionReuse}
		}

		// File vanished since load; treat as not yet downloaded.
		logctx.LoggerFromContext(ctx).Warn("recorded file missing, re-downloading", "path", record.FilePath)
		delete(m.byPath, record.FilePath)
		delete(m.index, hash)
	}

	folder := m.cfg.ThumbnailFolder
	if task.Kind == KindVideo {
		folder = m.cfg.VideoFolder
	}

	name := baseFilename(task.SourceURL, task.ItemID, task.Kind, task.Title)
	candidate := filepath.Join(m.cfg.BaseDir, folder, name)

	// Step past genuine collisions: paths already claimed by different
	// content. Repeats of the same content never reach this loop (they
	// resolve to a reuse above).
	for counter := 1; ; counter++ {
		claimedBy, claimed := m.byPath[candidate]
		if !claimed || claimedBy == hash {
			break
		}

		candidate = filepath.Join(m.cfg.BaseDir, folder, withSuffix(name, counter))
	}

	if !m.cfg.ForceRedownload && fileValid(candidate) {
		return resolution{path: candidate, action: actionSkip}
	}

	return resolution{path: candidate, action: actionFetch}
}

// adoptLocked registers an already-present file under the task's content
// hash so future requests resolve to a reuse. Called with m.mu held.
func (m *Manager) adoptLocked(task Task, hash, path string) {
	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}

	record := storage.ContentRecord{
		ContentHash:  hash,
		SourceURL:    task.SourceURL,
		FilePath:     path,
		SizeBytes:    size,
		DownloadedAt: time.Now(),
	}

	m.index[hash] = record
	m.byPath[path] = hash
	m.dirty[hash] = record

	m.stats.Total++
	m.stats.Skipped++
}

// fetch streams the body to disk in fixed-size chunks. On any transport
// error the partially written file is removed.
func (m *Manager) fetch(ctx context.Context, task Task, hash, targetPath string) (string, error) {
	logger := logctx.LoggerFromContext(ctx).With("item_id", task.ItemID, "target", targetPath)

	start := time.Now()

	written, contentType, err := m.streamToFile(ctx, task.SourceURL, targetPath, logger)
	if err != nil {
		if removeErr := os.Remove(targetPath); removeErr != nil && !os.IsNotExist(removeErr) {
			logger.Error("failed to remove partial file", "err", removeErr)
		}

		m.mu.Lock()
		m.stats.Total++
		m.stats.Failed++
		m.mu.Unlock()

		m.tel.RecordDownload(ctx, "failed", 0, time.Since(start))
		m.notifyError(task)

		return "", err
	}

	record := storage.ContentRecord{
		ContentHash:  hash,
		SourceURL:    task.SourceURL,
		FilePath:     targetPath,
		SizeBytes:    written,
		ContentType:  contentType,
		DownloadedAt: time.Now(),
	}

	m.mu.Lock()
	m.index[hash] = record
	m.byPath[targetPath] = hash
	m.dirty[hash] = record

	m.stats.Total++
	m.stats.Successful++
	m.stats.TotalBytes += written

	m.sinceFlush++
	if m.sinceFlush >= m.cfg.FlushEvery {
		m.flushLocked(ctx)
	}
	m.mu.Unlock()

	m.tel.RecordDownload(ctx, "successful", written, time.Since(start))

	logger.Info("downloaded and saved file", "size", humanize.Bytes(uint64(written)))

	return targetPath, nil
}

func (m *Manager) streamToFile(ctx context.Context, sourceURL, targetPath string, logger *slog.Logger) (int64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return 0, "", fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("failed to fetch content: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, "", fmt.Errorf("content fetch returned status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), dirPerm); err != nil {
		return 0, "", fmt.Errorf("failed to create target directory: %w", err)
	}

	out, err := os.Create(targetPath)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create target file: %w", err)
	}
	defer out.Close()

	progressCb := func(written, total int64) {
		if total > 0 {
			logger.Debug("download progress",
				"downloaded", humanize.Bytes(uint64(written)),
				"total", humanize.Bytes(uint64(total)))
		} else {
			logger.Debug("download progress", "downloaded", humanize.Bytes(uint64(written)))
		}
	}
	pr := progress.NewReader(resp.Body, resp.ContentLength, progressInterval, progressCb)

	written, err := io.CopyBuffer(out, pr, make([]byte, chunkSize))
	if err != nil {
		return 0, "", fmt.Errorf("failed to write content: %w", err)
	}

	return written, resp.Header.Get("Content-Type"), nil
}

// Stats returns the counters plus derived rates and the unique-content
// count.
func (m *Manager) Stats() StatsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return snapshot(m.stats, len(m.index))
}

// Reset zeroes the counters without touching the dedup database.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats = Stats{}
}

// CleanupDatabase removes records whose files no longer exist or are empty.
// Returns the number of records removed.
func (m *Manager) CleanupDatabase(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stale []string

	for hash, record := range m.index {
		if fileValid(record.FilePath) {
			continue
		}

		stale = append(stale, hash)
		delete(m.byPath, record.FilePath)
		delete(m.index, hash)
		delete(m.dirty, hash)
	}

	if len(stale) == 0 {
		return 0, nil
	}

	if err := m.repo.DeleteByHash(stale); err != nil {
		return 0, fmt.Errorf("failed to delete stale records: %w", err)
	}

	logctx.LoggerFromContext(ctx).Info("cleaned download database", "removed", len(stale))

	return len(stale), nil
}

// Flush writes any staged records to the database immediately.
func (m *Manager) Flush(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flushLocked(ctx)
}

// Close flushes the database and releases the error channel. The manager
// must not be used afterwards.
func (m *Manager) Close(ctx context.Context) {
	m.Flush(ctx)
	close(m.OnDownloadError)
}

// flushLocked persists the dirty set in one transaction. Called with m.mu
// held; sqlite writes are fast enough that holding the bookkeeping lock is
// acceptable, and the lock is never held across network fetches.
func (m *Manager) flushLocked(ctx context.Context) {
	if len(m.dirty) == 0 {
		m.sinceFlush = 0

		return
	}

	records := make([]storage.ContentRecord, 0, len(m.dirty))
	for _, record := range m.dirty {
		records = append(records, record)
	}

	if err := m.repo.SaveRecords(records); err != nil {
		// Keep the dirty set so the next flush retries; losing the most
		// recent entries costs at most a redundant re-download.
		logctx.LoggerFromContext(ctx).Error("failed to flush download database", "err", err)

		return
	}

	m.dirty = make(map[string]storage.ContentRecord)
	m.sinceFlush = 0
}

func (m *Manager) notifyError(task Task) {
	select {
	case m.OnDownloadError <- task:
	default: // nobody listening; drop rather than block a worker
	}
}

func fileValid(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	return info.Size() > 0
}
