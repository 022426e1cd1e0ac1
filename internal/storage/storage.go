package storage

import "time"

// ContentRecord describes one unique piece of downloaded content, keyed by
// the hash of its normalized source URL.
type ContentRecord struct {
	ContentHash  string
	SourceURL    string
	FilePath     string
	SizeBytes    int64
	ContentType  string
	DownloadedAt time.Time
}

// ContentReadRepository loads the persisted dedup database.
type ContentReadRepository interface {
	GetRecords() ([]ContentRecord, error)
}

// ContentWriteRepository persists dedup records.
type ContentWriteRepository interface {
	SaveRecords(records []ContentRecord) error // upsert, single transaction
	DeleteByHash(hashes []string) error
}
