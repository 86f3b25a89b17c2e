package format

import (
	"context"
	"database/sql"
	"encoding/base64"

	"github.com/goliatone/go-sessionvault/core"
	"github.com/uptrace/bun"
)

// PyrogramSQLiteParser reads the pyrogram-style .session embedded store:
// sessions(dc_id, auth_key, user_id, is_bot). The endpoint is resolved from
// the dc table since this layout stores no address.
type PyrogramSQLiteParser struct{}

func (PyrogramSQLiteParser) Kind() Kind {
	return KindPyrogramSQLite
}

func (PyrogramSQLiteParser) Parse(upload core.RawUpload) (core.CanonicalSession, error) {
	var session core.CanonicalSession
	err := withSessionDB(upload.Data, func(ctx context.Context, db *bun.DB) error {
		columns, err := sessionTableColumns(ctx, db)
		if err != nil {
			return err
		}
		for _, required := range []string{"dc_id", "auth_key"} {
			if !containsColumn(columns, required) {
				return core.NewCorruptSessionError(
					"format: pyrogram sessions table is missing column " + required,
				)
			}
		}

		query := "SELECT dc_id, auth_key FROM sessions LIMIT 1"
		withUserID := containsColumn(columns, "user_id")
		if withUserID {
			query = "SELECT dc_id, auth_key, user_id FROM sessions LIMIT 1"
		}

		var (
			dcID    int
			rawKey  []byte
			userID  sql.NullInt64
			scanErr error
		)
		row := db.QueryRowContext(ctx, query)
		if withUserID {
			scanErr = row.Scan(&dcID, &rawKey, &userID)
		} else {
			scanErr = row.Scan(&dcID, &rawKey)
		}
		if scanErr != nil {
			if scanErr == sql.ErrNoRows {
				return core.NewCorruptSessionError("format: pyrogram sessions table is empty")
			}
			return core.NewCorruptSessionError("format: pyrogram session row unreadable")
		}

		authKey, err := normalizeAuthKey(rawKey)
		if err != nil {
			return err
		}
		endpoint, err := core.LookupDCEndpoint(dcID)
		if err != nil {
			return core.NewCorruptSessionError("format: pyrogram session names an unknown dc")
		}

		session = core.CanonicalSession{
			AuthKey:       authKey,
			DCID:          dcID,
			ServerAddress: endpoint.Address,
			Port:          endpoint.Port,
			AccountID:     userID.Int64,
			SourceFormat:  string(KindPyrogramSQLite),
		}
		return nil
	})
	if err != nil {
		return core.CanonicalSession{}, err
	}
	return session, nil
}

// normalizeAuthKey accepts the two storage shapes seen in the wild: raw
// 256-byte material, or the same material base64-encoded as text.
func normalizeAuthKey(raw []byte) ([]byte, error) {
	if len(raw) == core.AuthKeySize {
		key := make([]byte, core.AuthKeySize)
		copy(key, raw)
		return key, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(string(raw))
	if err == nil && len(decoded) == core.AuthKeySize {
		return decoded, nil
	}
	return nil, core.NewCorruptSessionError("format: pyrogram auth key has wrong size")
}
