package download

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/italolelis/media_archiver/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	mu      sync.Mutex
	records map[string]storage.ContentRecord
	saves   int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{records: make(map[string]storage.ContentRecord)}
}

func (r *memoryRepo) GetRecords() ([]storage.ContentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := make([]storage.ContentRecord, 0, len(r.records))
	for _, record := range r.records {
		records = append(records, record)
	}

	return records, nil
}

func (r *memoryRepo) SaveRecords(records []storage.ContentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.saves++
	for _, record := range records {
		r.records[record.ContentHash] = record
	}

	return nil
}

func (r *memoryRepo) DeleteByHash(hashes []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, hash := range hashes {
		delete(r.records, hash)
	}

	return nil
}

func newTestManager(t *testing.T, repo Repository) *Manager {
	t.Helper()

	m, err := NewManager(context.Background(), Config{
		BaseDir:         t.TempDir(),
		ThumbnailFolder: "thumbs",
		VideoFolder:     "videos",
		MaxConcurrent:   2,
		FlushEvery:      100, // keep periodic flushes out of the way unless a test wants them
	}, repo, nil)
	require.NoError(t, err)

	return m
}

func TestFetchAll_SameContentFetchedOnce(t *testing.T) {
	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, "thumbnail bytes")
	}))
	defer srv.Close()

	m := newTestManager(t, newMemoryRepo())
	defer m.Close(context.Background())

	// Three items share one thumbnail; ephemeral params differ per request.
	tasks := []Task{
		{SourceURL: srv.URL + "/shared.jpg?token=a", ItemID: "vid1", Kind: KindThumbnail, Title: "one"},
		{SourceURL: srv.URL + "/shared.jpg?token=b", ItemID: "vid2", Kind: KindThumbnail, Title: "two"},
		{SourceURL: srv.URL + "/shared.jpg?token=c", ItemID: "vid3", Kind: KindThumbnail, Title: "three"},
	}

	results := m.FetchAll(context.Background(), tasks)

	assert.Equal(t, int32(1), hits.Load(), "identical content must be fetched exactly once")

	var paths []string
	for _, task := range tasks {
		path := results[task.ItemID][KindThumbnail]
		require.NotNil(t, path)
		paths = append(paths, *path)
	}

	assert.Equal(t, paths[0], paths[1])
	assert.Equal(t, paths[0], paths[2])

	stats := m.Stats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Successful)
	assert.Equal(t, 2, stats.Reused)
	assert.Equal(t, 1, stats.UniqueContent)
}

func TestFetchAll_FilenameCollisionKeepsContentApart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "content of %s", r.URL.Path)
	}))
	defer srv.Close()

	m := newTestManager(t, newMemoryRepo())
	defer m.Close(context.Background())

	// Different content, but itemID and title collide on the same name.
	tasks := []Task{
		{SourceURL: srv.URL + "/first.jpg", ItemID: "vid1", Kind: KindThumbnail, Title: "same"},
		{SourceURL: srv.URL + "/second.jpg", ItemID: "vid1", Kind: KindThumbnail, Title: "same"},
	}

	results := m.FetchAll(context.Background(), tasks)

	// Results are keyed by item and kind, so only one path survives in the
	// map, but both files must exist on disk under distinct names.
	require.NotNil(t, results["vid1"][KindThumbnail])

	stats := m.Stats()
	assert.Equal(t, 2, stats.Successful)
	assert.Equal(t, 2, stats.UniqueContent)

	entries, err := os.ReadDir(filepath.Join(m.cfg.BaseDir, "thumbs"))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "colliding names must be disambiguated, not overwritten")
}

func TestFetchAll_InvalidURLDegradesToNil(t *testing.T) {
	m := newTestManager(t, newMemoryRepo())
	defer m.Close(context.Background())

	results := m.FetchAll(context.Background(), []Task{
		{SourceURL: "ftp://example.com/a.jpg", ItemID: "vid1", Kind: KindThumbnail},
	})

	require.Contains(t, results, "vid1")
	assert.Nil(t, results["vid1"][KindThumbnail])

	stats := m.Stats()
	assert.Equal(t, 0, stats.Total, "invalid tasks never reach the pipeline")
}

func TestFetchAll_TruncatedTransferLeavesNoPartialFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Announce more bytes than we send, then cut the connection.
		w.Header().Set("Content-Length", "4096")
		w.Write([]byte("short"))
	}))
	defer srv.Close()

	m := newTestManager(t, newMemoryRepo())
	defer m.Close(context.Background())

	results := m.FetchAll(context.Background(), []Task{
		{SourceURL: srv.URL + "/broken.jpg", ItemID: "vid1", Kind: KindThumbnail, Title: "broken"},
	})

	assert.Nil(t, results["vid1"][KindThumbnail])

	stats := m.Stats()
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 0, stats.UniqueContent)

	entries, err := os.ReadDir(filepath.Join(m.cfg.BaseDir, "thumbs"))
	require.NoError(t, err)
	assert.Empty(t, entries, "a failed transfer must not leave a partial file behind")
}

func TestFetchAll_HTTPErrorCountsAsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	m := newTestManager(t, newMemoryRepo())
	defer m.Close(context.Background())

	results := m.FetchAll(context.Background(), []Task{
		{SourceURL: srv.URL + "/missing.jpg", ItemID: "vid1", Kind: KindThumbnail},
	})

	assert.Nil(t, results["vid1"][KindThumbnail])

	stats := m.Stats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, stats.Total, stats.Successful+stats.Failed+stats.Skipped+stats.Reused)
}

func TestFetchAll_ExistingFileIsAdopted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no fetch expected when the file is already on disk")
	}))
	defer srv.Close()

	m := newTestManager(t, newMemoryRepo())
	defer m.Close(context.Background())

	task := Task{SourceURL: srv.URL + "/pre.jpg", ItemID: "vid1", Kind: KindThumbnail, Title: "pre"}

	// Place the file where the deterministic name would put it, with no
	// database record claiming it.
	name := baseFilename(task.SourceURL, task.ItemID, task.Kind, task.Title)
	path := filepath.Join(m.cfg.BaseDir, "thumbs", name)
	require.NoError(t, os.WriteFile(path, []byte("already here"), 0644))

	results := m.FetchAll(context.Background(), []Task{task})

	require.NotNil(t, results["vid1"][KindThumbnail])
	assert.Equal(t, path, *results["vid1"][KindThumbnail])

	stats := m.Stats()
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.UniqueContent, "adopted files join the dedup database")
}

func TestManager_ReusesAcrossRestarts(t *testing.T) {
	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, "persistent content")
	}))
	defer srv.Close()

	repo := newMemoryRepo()

	dir := t.TempDir()
	cfg := Config{
		BaseDir:         dir,
		ThumbnailFolder: "thumbs",
		VideoFolder:     "videos",
		MaxConcurrent:   1,
		FlushEvery:      100,
	}

	task := Task{SourceURL: srv.URL + "/keep.jpg", ItemID: "vid1", Kind: KindThumbnail, Title: "keep"}

	first, err := NewManager(context.Background(), cfg, repo, nil)
	require.NoError(t, err)

	first.FetchAll(context.Background(), []Task{task})
	first.Close(context.Background()) // flushes staged records

	require.Equal(t, 1, repo.saves)

	second, err := NewManager(context.Background(), cfg, repo, nil)
	require.NoError(t, err)
	defer second.Close(context.Background())

	results := second.FetchAll(context.Background(), []Task{task})

	require.NotNil(t, results["vid1"][KindThumbnail])
	assert.Equal(t, int32(1), hits.Load(), "a restarted manager must reuse persisted content")
	assert.Equal(t, 1, second.Stats().Reused)
}

func TestManager_PeriodicFlush(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "content of %s", r.URL.Path)
	}))
	defer srv.Close()

	repo := newMemoryRepo()

	m, err := NewManager(context.Background(), Config{
		BaseDir:         t.TempDir(),
		ThumbnailFolder: "thumbs",
		VideoFolder:     "videos",
		MaxConcurrent:   1,
		FlushEvery:      2,
	}, repo, nil)
	require.NoError(t, err)
	defer m.Close(context.Background())

	var tasks []Task
	for i := 0; i < 4; i++ {
		tasks = append(tasks, Task{
			SourceURL: fmt.Sprintf("%s/item%d.jpg", srv.URL, i),
			ItemID:    fmt.Sprintf("vid%d", i),
			Kind:      KindThumbnail,
		})
	}

	m.FetchAll(context.Background(), tasks)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Equal(t, 2, repo.saves, "every FlushEvery successes must trigger a flush")
	assert.Len(t, repo.records, 4)
}

func TestManager_ResetPreservesDedup(t *testing.T) {
	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, "content")
	}))
	defer srv.Close()

	m := newTestManager(t, newMemoryRepo())
	defer m.Close(context.Background())

	task := Task{SourceURL: srv.URL + "/a.jpg", ItemID: "vid1", Kind: KindThumbnail}

	m.FetchAll(context.Background(), []Task{task})
	m.Reset()

	assert.Equal(t, 0, m.Stats().Total)

	m.FetchAll(context.Background(), []Task{task})

	assert.Equal(t, int32(1), hits.Load(), "reset clears counters, not the dedup index")
	assert.Equal(t, 1, m.Stats().Reused)
}

func TestManager_CleanupDatabase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "content of %s", r.URL.Path)
	}))
	defer srv.Close()

	repo := newMemoryRepo()
	m := newTestManager(t, repo)
	defer m.Close(context.Background())

	results := m.FetchAll(context.Background(), []Task{
		{SourceURL: srv.URL + "/stays.jpg", ItemID: "vid1", Kind: KindThumbnail},
		{SourceURL: srv.URL + "/vanishes.jpg", ItemID: "vid2", Kind: KindThumbnail},
	})
	m.Flush(context.Background())

	require.NoError(t, os.Remove(*results["vid2"][KindThumbnail]))

	removed, err := m.CleanupDatabase(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, m.Stats().UniqueContent)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Len(t, repo.records, 1)
}

func TestManager_ErrorEventEmitted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := newTestManager(t, newMemoryRepo())
	defer m.Close(context.Background())

	m.FetchAll(context.Background(), []Task{
		{SourceURL: srv.URL + "/bad.jpg", ItemID: "vid1", Kind: KindThumbnail},
	})

	select {
	case task := <-m.OnDownloadError:
		assert.Equal(t, "vid1", task.ItemID)
	default:
		t.Fatal("expected a download error event")
	}
}
