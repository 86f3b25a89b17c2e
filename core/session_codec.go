package core

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	SessionPayloadFormatJSONV1 = "canonical_session_json"
	SessionPayloadVersionV1    = 1
)

// SessionCodec serializes a CanonicalSession for sealing. Encoding must be
// deterministic: byte-identical sessions produce byte-identical payloads.
type SessionCodec interface {
	Format() string
	Version() int
	Encode(session CanonicalSession) ([]byte, error)
	Decode(payload []byte) (CanonicalSession, error)
}

type JSONSessionCodec struct{}

func (JSONSessionCodec) Format() string {
	return SessionPayloadFormatJSONV1
}

func (JSONSessionCodec) Version() int {
	return SessionPayloadVersionV1
}

type jsonSessionPayload struct {
	AuthKey       string `json:"auth_key"`
	DCID          int    `json:"dc_id"`
	ServerAddress string `json:"server_address"`
	Port          int    `json:"port"`
	PhoneNumber   string `json:"phone_number,omitempty"`
	AccountID     int64  `json:"account_id,omitempty"`
	Version       int    `json:"version,omitempty"`
	SourceFormat  string `json:"source_format"`
}

func (JSONSessionCodec) Encode(session CanonicalSession) ([]byte, error) {
	if err := session.Validate(); err != nil {
		return nil, fmt.Errorf("core: encode session payload: %w", err)
	}
	payload := jsonSessionPayload{
		AuthKey:       base64.StdEncoding.EncodeToString(session.AuthKey),
		DCID:          session.DCID,
		ServerAddress: strings.TrimSpace(session.ServerAddress),
		Port:          session.Port,
		PhoneNumber:   strings.TrimSpace(session.PhoneNumber),
		AccountID:     session.AccountID,
		Version:       session.Version,
		SourceFormat:  strings.TrimSpace(session.SourceFormat),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("core: encode session payload: %w", err)
	}
	return encoded, nil
}

func (JSONSessionCodec) Decode(payload []byte) (CanonicalSession, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return CanonicalSession{}, fmt.Errorf("core: session payload is empty")
	}
	decoded := jsonSessionPayload{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return CanonicalSession{}, fmt.Errorf("core: decode session payload: %w", err)
	}
	authKey, err := base64.StdEncoding.DecodeString(decoded.AuthKey)
	if err != nil {
		return CanonicalSession{}, fmt.Errorf("core: decode session auth key: %w", err)
	}
	session := CanonicalSession{
		AuthKey:       authKey,
		DCID:          decoded.DCID,
		ServerAddress: strings.TrimSpace(decoded.ServerAddress),
		Port:          decoded.Port,
		PhoneNumber:   strings.TrimSpace(decoded.PhoneNumber),
		AccountID:     decoded.AccountID,
		Version:       decoded.Version,
		SourceFormat:  strings.TrimSpace(decoded.SourceFormat),
	}
	if err := session.Validate(); err != nil {
		return CanonicalSession{}, fmt.Errorf("core: decode session payload: %w", err)
	}
	return session, nil
}
