package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// ErrPrimaryKeyColumnMissing signals that the exported rows do not carry the
// primary key column, so the delete was skipped rather than attempted.
var ErrPrimaryKeyColumnMissing = errors.New("primary key column missing from exported rows, delete skipped")

// deleteChunkSize bounds the number of placeholders per DELETE statement.
// PostgreSQL caps bind parameters at 65535 per statement.
const deleteChunkSize = 1000

// DeleteExportedRows removes exactly the rows of one uploaded partition from
// the source table, matched by primary key. The delete runs in a single
// transaction: either every listed row is removed or none are. Rows inserted
// concurrently during the run are never touched because only the snapshot's
// key values are listed.
func DeleteExportedRows(ctx context.Context, db *sql.DB, table, pkColumn string, rows []map[string]interface{}) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	keys := make([]interface{}, 0, len(rows))
	for _, row := range rows {
		key, present := row[pkColumn]
		if !present {
			return 0, ErrPrimaryKeyColumnMissing
		}
		keys = append(keys, key)
	}

	quotedTable := pq.QuoteIdentifier(table)
	quotedColumn := pq.QuoteIdentifier(pkColumn)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin delete transaction: %w", err)
	}

	var deleted int64
	for start := 0; start < len(keys); start += deleteChunkSize {
		end := start + deleteChunkSize
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]

		placeholders := make([]string, len(chunk))
		for i := range chunk {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		}

		//nolint:gosec // Table and column names are quoted with pq.QuoteIdentifier
		query := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)",
			quotedTable, quotedColumn, strings.Join(placeholders, ", "))

		result, err := tx.ExecContext(ctx, query, chunk...)
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				return 0, fmt.Errorf("delete failed: %w (rollback also failed: %v)", err, rollbackErr)
			}
			return 0, fmt.Errorf("delete failed: %w", err)
		}

		affected, err := result.RowsAffected()
		if err == nil {
			deleted += affected
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit delete transaction: %w", err)
	}

	return deleted, nil
}
