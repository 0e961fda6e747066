package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iudanet/coachsync/internal/models"
	"github.com/iudanet/coachsync/internal/server/storage"
)

const recordColumns = `id, user_id, table_name, parent_id, client_id, data, created_at, updated_at`

// CreateRecord inserts record and stores result atomically.
func (s *Storage) CreateRecord(ctx context.Context, record *models.Record, result *models.DeliveryResult) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if record.ParentID != "" {
			var one int
			err := tx.QueryRowContext(ctx,
				`SELECT 1 FROM records WHERE id = ? AND user_id = ?`, record.ParentID, record.UserID,
			).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrRecordNotFound
			}
			if err != nil {
				return fmt.Errorf("failed to check parent: %w", err)
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO records (`+recordColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			record.ID,
			record.UserID,
			string(record.Table),
			nullString(record.ParentID),
			record.ClientID,
			[]byte(record.Data),
			record.CreatedAt,
			record.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return storage.ErrRecordExists
			}
			return fmt.Errorf("failed to insert record: %w", err)
		}

		return insertDelivery(ctx, tx, result)
	})
}

// GetRecord retrieves one record of the user.
func (s *Storage) GetRecord(ctx context.Context, userID string, table models.Table, id string) (*models.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM records
		WHERE id = ? AND user_id = ? AND table_name = ?
	`, id, userID, string(table))

	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return record, nil
}

// ListRecords retrieves all records of a table.
func (s *Storage) ListRecords(ctx context.Context, userID string, table models.Table) ([]*models.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM records
		WHERE user_id = ? AND table_name = ?
		ORDER BY created_at, id
	`, userID, string(table))
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var records []*models.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}

// UpdateRecord replaces data and updated_at of an existing record.
func (s *Storage) UpdateRecord(ctx context.Context, record *models.Record, result *models.DeliveryResult) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE records SET data = ?, updated_at = ?
			WHERE id = ? AND user_id = ? AND table_name = ?
		`, []byte(record.Data), record.UpdatedAt, record.ID, record.UserID, string(record.Table))
		if err != nil {
			return fmt.Errorf("failed to update record: %w", err)
		}
		if err := requireAffected(res, storage.ErrRecordNotFound); err != nil {
			return err
		}
		return insertDelivery(ctx, tx, result)
	})
}

// DeleteRecord removes the record; children go with it via ON DELETE CASCADE.
// Deleting a missing record is not an error.
func (s *Storage) DeleteRecord(
	ctx context.Context,
	userID string,
	table models.Table,
	id string,
	result *models.DeliveryResult,
) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM records WHERE id = ? AND user_id = ? AND table_name = ?`, id, userID, string(table))
		if err != nil {
			return fmt.Errorf("failed to delete record: %w", err)
		}
		return insertDelivery(ctx, tx, result)
	})
}

// GetDelivery returns the stored result for a correlation id, or nil.
func (s *Storage) GetDelivery(ctx context.Context, userID, correlationID string) (*models.DeliveryResult, error) {
	result := &models.DeliveryResult{}
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, correlation_id, status, body, created_at
		FROM deliveries
		WHERE user_id = ? AND correlation_id = ?
	`, userID, correlationID).Scan(
		&result.UserID,
		&result.CorrelationID,
		&result.Status,
		&result.Body,
		&result.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery: %w", err)
	}
	return result, nil
}

// SaveDelivery stores a result on its own.
func (s *Storage) SaveDelivery(ctx context.Context, result *models.DeliveryResult) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertDelivery(ctx, tx, result)
	})
}

// insertDelivery пропускает nil: запрос без Correlation-Id не запоминается
func insertDelivery(ctx context.Context, tx *sql.Tx, result *models.DeliveryResult) error {
	if result == nil {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO deliveries (user_id, correlation_id, status, body, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, result.UserID, result.CorrelationID, result.Status, result.Body, result.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDeliveryExists
		}
		return fmt.Errorf("failed to save delivery: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	record := &models.Record{}
	var (
		table    string
		parentID sql.NullString
		data     []byte
	)
	err := row.Scan(
		&record.ID,
		&record.UserID,
		&table,
		&parentID,
		&record.ClientID,
		&data,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.Table = models.Table(table)
	record.ParentID = parentID.String
	record.Data = data
	return record, nil
}

func requireAffected(res sql.Result, notFound error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
