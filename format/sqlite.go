package format

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/goliatone/go-sessionvault/core"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/mattn/go-sqlite3"
)

// withSessionDB materializes the payload into a scratch file and opens it as
// an immutable read-only store. The source bytes are never touched; the
// scratch copy is removed before returning.
func withSessionDB(data []byte, fn func(ctx context.Context, db *bun.DB) error) error {
	dir, err := os.MkdirTemp("", "sessionvault-sqlite-")
	if err != nil {
		return fmt.Errorf("format: scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "payload.session")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("format: scratch copy: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?immutable=1&mode=ro", url.PathEscape(path))
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("format: open session store: %w", err)
	}
	defer sqlDB.Close()
	sqlDB.SetMaxOpenConns(1)

	db := bun.NewDB(sqlDB, sqlitedialect.New())
	defer db.Close()

	return fn(context.Background(), db)
}

func sessionTableColumns(ctx context.Context, db *bun.DB) ([]string, error) {
	var tableName string
	err := db.NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", "sessions",
	).Scan(ctx, &tableName)
	if err != nil || tableName != "sessions" {
		return nil, core.NewCorruptSessionError("format: session store has no sessions table")
	}

	rows, err := db.QueryContext(ctx, "PRAGMA table_info(sessions)")
	if err != nil {
		return nil, core.NewCorruptSessionError("format: session store schema unreadable")
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, core.NewCorruptSessionError("format: session store schema unreadable")
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewCorruptSessionError("format: session store schema unreadable")
	}
	return columns, nil
}

// detectSQLiteKind distinguishes the two embedded-store session layouts by
// schema shape: the pyrogram layout carries user_id/is_bot columns on the
// sessions table, the telethon layout does not.
func detectSQLiteKind(data []byte) (Kind, error) {
	kind := KindTelethonSQLite
	err := withSessionDB(data, func(ctx context.Context, db *bun.DB) error {
		columns, err := sessionTableColumns(ctx, db)
		if err != nil {
			return err
		}
		if containsColumn(columns, "user_id") || containsColumn(columns, "is_bot") {
			kind = KindPyrogramSQLite
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return kind, nil
}

func containsColumn(columns []string, name string) bool {
	for _, column := range columns {
		if column == name {
			return true
		}
	}
	return false
}
