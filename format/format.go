// Package format classifies seller-submitted credential payloads into a
// closed set of serialization formats and parses each into the canonical
// session model. Detection is structural: container magic, database schema
// shape, envelope keys or bundle layout, never a declared file extension.
package format

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-sessionvault/core"
)

// Kind identifies one supported serialization format. The set is closed: a
// payload matching none of them is rejected up front and never retried.
type Kind string

const (
	KindTelethonSQLite Kind = "telethon_sqlite"
	KindPyrogramSQLite Kind = "pyrogram_sqlite"
	KindStringSession  Kind = "string_session"
	KindTData          Kind = "tdata"
	KindJSONEnvelope   Kind = "json_envelope"
)

var sqliteMagic = []byte("SQLite format 3\x00")

// tdataKeyFile is the file whose presence marks a desktop-client bundle.
const tdataKeyFile = "key_datas"

// Parser converts one recognized format into the canonical session model.
// Parsers are read-only, deterministic and never return a partial session.
type Parser interface {
	Kind() Kind
	Parse(upload core.RawUpload) (core.CanonicalSession, error)
}

// Detect classifies a raw upload. It inspects structure only and has no side
// effects on the payload.
func Detect(upload core.RawUpload) (Kind, error) {
	if len(upload.Bundle) > 0 {
		if _, ok := upload.Bundle[tdataKeyFile]; ok {
			return KindTData, nil
		}
		return "", core.NewUnsupportedFormatError(
			"format: bundle lacks a key_datas file",
		)
	}

	data := upload.Data
	if len(bytes.TrimSpace(data)) == 0 {
		return "", core.NewUnsupportedFormatError("format: payload is empty")
	}

	if bytes.HasPrefix(data, sqliteMagic) {
		return detectSQLiteKind(data)
	}

	trimmed := bytes.TrimSpace(data)
	if trimmed[0] == '{' {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &probe); err == nil {
			return KindJSONEnvelope, nil
		}
		return "", core.NewUnsupportedFormatError("format: payload is not a json object")
	}

	if isStringSession(string(trimmed)) {
		return KindStringSession, nil
	}

	return "", core.NewUnsupportedFormatError("format: payload matches no known structure")
}

// ParserFor returns the parser implementation for a detected kind.
func ParserFor(kind Kind) (Parser, error) {
	switch kind {
	case KindTelethonSQLite:
		return TelethonSQLiteParser{}, nil
	case KindPyrogramSQLite:
		return PyrogramSQLiteParser{}, nil
	case KindStringSession:
		return StringSessionParser{}, nil
	case KindTData:
		return TDataParser{}, nil
	case KindJSONEnvelope:
		return JSONEnvelopeParser{}, nil
	}
	return nil, core.NewUnsupportedFormatError(
		fmt.Sprintf("format: no parser for kind %q", kind),
	)
}

// Importer is the detect-then-parse entry point wired into the lifecycle
// service.
type Importer struct{}

func NewImporter() Importer {
	return Importer{}
}

func (Importer) Import(upload core.RawUpload) (core.CanonicalSession, error) {
	kind, err := Detect(upload)
	if err != nil {
		return core.CanonicalSession{}, err
	}
	parser, err := ParserFor(kind)
	if err != nil {
		return core.CanonicalSession{}, err
	}
	return parser.Parse(upload)
}

func isStringSession(value string) bool {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) < 2 || trimmed[0] != '1' {
		return false
	}
	frame, err := base64.URLEncoding.DecodeString(trimmed[1:])
	if err != nil {
		return false
	}
	switch len(frame) {
	case 1 + 4 + 2 + core.AuthKeySize, 1 + 16 + 2 + core.AuthKeySize:
		return true
	}
	return false
}

var _ core.SessionImporter = Importer{}
