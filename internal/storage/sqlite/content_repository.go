package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/italolelis/media_archiver/internal/storage"
)

type ContentRepository struct {
	db *sql.DB
}

func NewContentRepository(dbConn *sql.DB) *ContentRepository {
	return &ContentRepository{db: dbConn}
}

func (r *ContentRepository) GetRecords() ([]storage.ContentRecord, error) {
	rows, err := r.db.Query(`SELECT content_hash, source_url, file_path, size_bytes, content_type, downloaded_at FROM content_records`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []storage.ContentRecord

	for rows.Next() {
		var record storage.ContentRecord

		var contentType sql.NullString

		var downloadedAt sql.NullString

		err := rows.Scan(&record.ContentHash, &record.SourceURL, &record.FilePath, &record.SizeBytes, &contentType, &downloadedAt)
		if err != nil {
			return nil, err
		}

		if contentType.Valid {
			record.ContentType = contentType.String
		}

		if downloadedAt.Valid {
			if ts, err := time.Parse(time.RFC3339, downloadedAt.String); err == nil {
				record.DownloadedAt = ts
			}
		}

		records = append(records, record)
	}

	return records, rows.Err()
}

// SaveRecords upserts the given records in a single transaction. Called on
// each periodic flush and at shutdown.
func (r *ContentRepository) SaveRecords(records []storage.ContentRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO content_records (content_hash, source_url, file_path, size_bytes, content_type, downloaded_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_hash) DO UPDATE SET
			source_url = excluded.source_url,
			file_path = excluded.file_path,
			size_bytes = excluded.size_bytes,
			content_type = excluded.content_type,
			downloaded_at = excluded.downloaded_at
	`)
	if err != nil {
		tx.Rollback() //nolint:errcheck

		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		if _, err := stmt.Exec(
			record.ContentHash,
			record.SourceURL,
			record.FilePath,
			record.SizeBytes,
			record.ContentType,
			record.DownloadedAt.Format(time.RFC3339),
		); err != nil {
			tx.Rollback() //nolint:errcheck

			return fmt.Errorf("failed to upsert record %s: %w", record.ContentHash, err)
		}
	}

	return tx.Commit()
}

func (r *ContentRepository) DeleteByHash(hashes []string) error {
	if len(hashes) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, hash := range hashes {
		if _, err := tx.Exec(`DELETE FROM content_records WHERE content_hash = ?`, hash); err != nil {
			tx.Rollback() //nolint:errcheck

			return fmt.Errorf("failed to delete record %s: %w", hash, err)
		}
	}

	return tx.Commit()
}
