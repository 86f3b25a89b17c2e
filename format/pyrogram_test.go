package format

import (
	"bytes"
	"database/sql"
	"encoding/base64"
	"testing"

	"github.com/goliatone/go-sessionvault/core"
)

func TestPyrogramParseRawKey(t *testing.T) {
	authKey := testAuthKey()
	data := pyrogramSessionBytes(t, 2, authKey, 777001)

	session, err := PyrogramSQLiteParser{}.Parse(core.RawUpload{Data: data})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if session.DCID != 2 || session.ServerAddress != "149.154.167.51" || session.Port != 443 {
		t.Fatalf("unexpected endpoint: dc=%d %s:%d", session.DCID, session.ServerAddress, session.Port)
	}
	if !bytes.Equal(session.AuthKey, authKey) {
		t.Fatal("auth key does not match the stored material")
	}
	if session.AccountID != 777001 {
		t.Fatalf("expected account id 777001, got %d", session.AccountID)
	}
	if session.SourceFormat != string(KindPyrogramSQLite) {
		t.Fatalf("expected source format %q, got %q", KindPyrogramSQLite, session.SourceFormat)
	}
}

func TestPyrogramParseBase64Key(t *testing.T) {
	authKey := testAuthKey()
	encoded := []byte(base64.StdEncoding.EncodeToString(authKey))
	data := pyrogramSessionBytes(t, 5, encoded, 0)

	session, err := PyrogramSQLiteParser{}.Parse(core.RawUpload{Data: data})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !bytes.Equal(session.AuthKey, authKey) {
		t.Fatal("base64 key material was not normalized")
	}
	if session.DCID != 5 || session.ServerAddress != "91.108.56.130" {
		t.Fatalf("unexpected endpoint: dc=%d %s", session.DCID, session.ServerAddress)
	}
}

func TestPyrogramParseWithoutUserColumn(t *testing.T) {
	data := sessionDBBytes(t, func(t *testing.T, db *sql.DB) {
		mustExec(t, db, `CREATE TABLE sessions (dc_id INTEGER, auth_key BLOB)`)
		mustExec(t, db, `INSERT INTO sessions (dc_id, auth_key) VALUES (?, ?)`, 2, testAuthKey())
	})

	session, err := PyrogramSQLiteParser{}.Parse(core.RawUpload{Data: data})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if session.AccountID != 0 {
		t.Fatalf("expected no account id, got %d", session.AccountID)
	}
}

func TestPyrogramParseCorruptStores(t *testing.T) {
	cases := map[string]func(t *testing.T, db *sql.DB){
		"missing dc_id column": func(t *testing.T, db *sql.DB) {
			mustExec(t, db, `CREATE TABLE sessions (auth_key BLOB, user_id INTEGER)`)
		},
		"empty sessions table": func(t *testing.T, db *sql.DB) {
			mustExec(t, db, `CREATE TABLE sessions (dc_id INTEGER, auth_key BLOB, user_id INTEGER, is_bot INTEGER)`)
		},
		"wrong-size auth key": func(t *testing.T, db *sql.DB) {
			mustExec(t, db, `CREATE TABLE sessions (dc_id INTEGER, auth_key BLOB, user_id INTEGER, is_bot INTEGER)`)
			mustExec(t, db, `INSERT INTO sessions (dc_id, auth_key, user_id, is_bot) VALUES (?, ?, ?, ?)`,
				2, []byte("not a key"), 0, 0)
		},
		"unknown dc": func(t *testing.T, db *sql.DB) {
			mustExec(t, db, `CREATE TABLE sessions (dc_id INTEGER, auth_key BLOB, user_id INTEGER, is_bot INTEGER)`)
			mustExec(t, db, `INSERT INTO sessions (dc_id, auth_key, user_id, is_bot) VALUES (?, ?, ?, ?)`,
				42, testAuthKey(), 0, 0)
		},
	}

	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			data := sessionDBBytes(t, build)
			if _, err := (PyrogramSQLiteParser{}).Parse(core.RawUpload{Data: data}); !core.IsCorruptSession(err) {
				t.Fatalf("expected corrupt session, got %v", err)
			}
		})
	}
}

func TestNormalizeAuthKey(t *testing.T) {
	authKey := testAuthKey()

	raw, err := normalizeAuthKey(authKey)
	if err != nil {
		t.Fatalf("raw key: %v", err)
	}
	if !bytes.Equal(raw, authKey) {
		t.Fatal("raw key changed during normalization")
	}
	raw[0] ^= 0xFF
	if authKey[0] == raw[0] {
		t.Fatal("normalized key shares backing storage with the input")
	}

	decoded, err := normalizeAuthKey([]byte(base64.StdEncoding.EncodeToString(authKey)))
	if err != nil {
		t.Fatalf("base64 key: %v", err)
	}
	if !bytes.Equal(decoded, authKey) {
		t.Fatal("base64 key did not decode to the original material")
	}

	if _, err := normalizeAuthKey([]byte("garbage")); !core.IsCorruptSession(err) {
		t.Fatalf("expected corrupt session, got %v", err)
	}
}
