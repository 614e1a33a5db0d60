package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pensionhub/internal/model"
)

// 导入日志状态
const (
	ImportProcessing = "processing"
	ImportCompleted  = "completed"
	ImportPartial    = "partial"
	ImportFailed     = "failed"
)

// CreateImportLog 创建导入日志（状态 processing）
func (s *Store) CreateImportLog(ctx context.Context, batchID, filename string, fileSize int64, fileHash string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, s.Rebind(`
		INSERT INTO import_logs (batch_id, filename, file_size, file_hash, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), batchID, filename, fileSize, fileHash, ImportProcessing, startedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to create import log: %w", err)
	}
	return nil
}

// FinishImportLog 写入批次结果
func (s *Store) FinishImportLog(ctx context.Context, res *model.BatchResult, status string, completedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, s.Rebind(`
		UPDATE import_logs SET
			detected_format = ?,
			confidence = ?,
			status = ?,
			total_rows = ?,
			inserted_rows = ?,
			duplicates = ?,
			rejected = ?,
			errors = ?,
			geo_unresolved = ?,
			error_message = ?,
			completed_at = ?
		WHERE batch_id = ?
	`), res.DetectedFormat, res.Confidence, status, res.TotalRows, res.InsertedRows, res.Duplicates,
		res.Rejected, res.Errors, res.GeoUnresolved, res.FatalError, completedAt.UTC().Format(time.RFC3339), res.BatchID)
	if err != nil {
		return fmt.Errorf("failed to update import log: %w", err)
	}
	return nil
}

// GetImportLog 读取单个批次日志
func (s *Store) GetImportLog(ctx context.Context, batchID string) (*model.ImportLog, error) {
	row := s.db.QueryRowContext(ctx, s.Rebind(importLogSelect+" WHERE batch_id = ?"), batchID)
	l, err := scanImportLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return l, err
}

// ListImportLogs 最近的导入日志
func (s *Store) ListImportLogs(ctx context.Context, limit int) ([]*model.ImportLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, s.Rebind(importLogSelect+" ORDER BY started_at DESC LIMIT ?"), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list import logs: %w", err)
	}
	defer rows.Close()

	var out []*model.ImportLog
	for rows.Next() {
		l, err := scanImportLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

const importLogSelect = `SELECT batch_id, filename, file_size, file_hash, detected_format, confidence, status,
	total_rows, inserted_rows, duplicates, rejected, errors, geo_unresolved, error_message,
	started_at, completed_at FROM import_logs`

func scanImportLog(sc rowScanner) (*model.ImportLog, error) {
	var (
		l         model.ImportLog
		startedAt string
		completed sql.NullString
	)
	err := sc.Scan(&l.BatchID, &l.Filename, &l.FileSize, &l.FileHash, &l.DetectedFormat, &l.Confidence, &l.Status,
		&l.TotalRows, &l.InsertedRows, &l.Duplicates, &l.Rejected, &l.Errors, &l.GeoUnresolved, &l.ErrorMessage,
		&startedAt, &completed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read import log: %w", err)
	}
	if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
		l.StartedAt = t
	}
	if completed.Valid {
		if t, err := time.Parse(time.RFC3339, completed.String); err == nil {
			l.CompletedAt = &t
		}
	}
	return &l, nil
}
