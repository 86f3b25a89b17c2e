package format

import (
	"context"
	"database/sql"
	"strings"

	"github.com/goliatone/go-sessionvault/core"
	"github.com/uptrace/bun"
)

// TelethonSQLiteParser reads the telethon-style .session embedded store:
// sessions(dc_id, server_address, port, auth_key) plus an optional version
// table.
type TelethonSQLiteParser struct{}

func (TelethonSQLiteParser) Kind() Kind {
	return KindTelethonSQLite
}

func (TelethonSQLiteParser) Parse(upload core.RawUpload) (core.CanonicalSession, error) {
	var session core.CanonicalSession
	err := withSessionDB(upload.Data, func(ctx context.Context, db *bun.DB) error {
		columns, err := sessionTableColumns(ctx, db)
		if err != nil {
			return err
		}
		for _, required := range []string{"dc_id", "server_address", "port", "auth_key"} {
			if !containsColumn(columns, required) {
				return core.NewCorruptSessionError(
					"format: telethon sessions table is missing column " + required,
				)
			}
		}

		var (
			dcID          int
			serverAddress string
			port          int
			authKey       []byte
		)
		row := db.QueryRowContext(ctx,
			"SELECT dc_id, server_address, port, auth_key FROM sessions LIMIT 1",
		)
		if err := row.Scan(&dcID, &serverAddress, &port, &authKey); err != nil {
			if err == sql.ErrNoRows {
				return core.NewCorruptSessionError("format: telethon sessions table is empty")
			}
			return core.NewCorruptSessionError("format: telethon session row unreadable")
		}
		if len(authKey) != core.AuthKeySize {
			return core.NewCorruptSessionError("format: telethon auth key has wrong size")
		}
		if !core.ValidDC(dcID) {
			return core.NewCorruptSessionError("format: telethon session names an unknown dc")
		}
		if strings.TrimSpace(serverAddress) == "" || port <= 0 {
			endpoint, err := core.LookupDCEndpoint(dcID)
			if err != nil {
				return core.NewCorruptSessionError("format: telethon session lacks an endpoint")
			}
			serverAddress = endpoint.Address
			port = endpoint.Port
		}

		key := make([]byte, core.AuthKeySize)
		copy(key, authKey)
		session = core.CanonicalSession{
			AuthKey:       key,
			DCID:          dcID,
			ServerAddress: strings.TrimSpace(serverAddress),
			Port:          port,
			Version:       readSchemaVersion(ctx, db),
			SourceFormat:  string(KindTelethonSQLite),
		}
		return nil
	})
	if err != nil {
		return core.CanonicalSession{}, err
	}
	return session, nil
}

// readSchemaVersion is best effort: older stores lack the version table.
func readSchemaVersion(ctx context.Context, db *bun.DB) int {
	var version int
	if err := db.NewRaw("SELECT version FROM version LIMIT 1").Scan(ctx, &version); err != nil {
		return 0
	}
	return version
}
