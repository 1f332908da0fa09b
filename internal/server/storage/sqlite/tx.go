package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/zettelsync/internal/server/storage"
	sqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// txMaxAttempts ограничивает количество повторов транзакции
// при конфликте сериализации (SQLITE_BUSY / SQLITE_LOCKED)
const txMaxAttempts = 3

// InTx executes fn inside a single transaction, retrying up to
// txMaxAttempts times on serialization conflicts. Business errors from fn
// roll back the transaction and are returned as-is.
func (s *Storage) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	var lastErr error

	for attempt := 1; attempt <= txMaxAttempts; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err

		// Небольшая линейно растущая пауза перед повтором
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 10 * time.Millisecond):
		}
	}

	return fmt.Errorf("%w: %v", storage.ErrTxConflict, lastErr)
}

func (s *Storage) runTx(ctx context.Context, fn func(tx storage.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			// Ошибка rollback вторична по отношению к исходной
			_ = tx.Rollback()
		}
	}()

	if err = fn(&sqlTx{tx: tx}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// isRetryable проверяет, является ли ошибка конфликтом сериализации,
// который безопасно разрешается повторным выполнением транзакции
func isRetryable(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		code := serr.Code() & 0xff // primary error code
		return code == sqlitelib.SQLITE_BUSY || code == sqlitelib.SQLITE_LOCKED
	}
	return false
}

// isConstraintErr проверяет нарушение ограничения уникальности/целостности
func isConstraintErr(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		return serr.Code()&0xff == sqlitelib.SQLITE_CONSTRAINT
	}
	return false
}

// sqlTx implements storage.Tx on top of *sql.Tx
type sqlTx struct {
	tx *sql.Tx
}

var _ storage.Tx = (*sqlTx)(nil)

// scanVersionRows is a helper to scan (id, version) pairs from rows
func scanVersionRows(rows *sql.Rows) ([]storage.VersionRow, error) {
	var result []storage.VersionRow

	for rows.Next() {
		var row storage.VersionRow
		if err := rows.Scan(&row.ID, &row.RowVersion); err != nil {
			return nil, fmt.Errorf("failed to scan version row: %w", err)
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}

// inPlaceholders возвращает строку вида "?,?,?" для IN-запросов
func inPlaceholders(n int) string {
	if n == 0 {
		return ""
	}
	buf := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '?')
	}
	return string(buf)
}

// idsToArgs конвертирует список ID в []any для QueryContext
func idsToArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
