package format

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/goliatone/go-sessionvault/core"
)

// JSONEnvelopeParser accepts two envelope shapes: a wrapper around a portable
// string session, or explicit fields with a base64 auth key. Required fields
// are schema-validated before acceptance.
type JSONEnvelopeParser struct{}

func (JSONEnvelopeParser) Kind() Kind {
	return KindJSONEnvelope
}

type jsonEnvelope struct {
	SessionString *string `json:"session_string"`
	DCID          *int    `json:"dc_id"`
	AuthKey       *string `json:"auth_key"`
	PhoneNumber   string  `json:"phone_number"`
	UserID        int64   `json:"user_id"`
}

func (JSONEnvelopeParser) Parse(upload core.RawUpload) (core.CanonicalSession, error) {
	decoder := json.NewDecoder(strings.NewReader(string(upload.Data)))
	decoder.DisallowUnknownFields()

	var parsed jsonEnvelope
	if err := decoder.Decode(&parsed); err != nil {
		return core.CanonicalSession{}, core.NewCorruptSessionError(
			"format: json envelope schema mismatch: " + err.Error(),
		)
	}

	switch {
	case parsed.SessionString != nil:
		session, err := core.DecodeStringSession(*parsed.SessionString)
		if err != nil {
			return core.CanonicalSession{}, core.NewCorruptSessionError(err.Error())
		}
		session.PhoneNumber = strings.TrimSpace(parsed.PhoneNumber)
		session.AccountID = parsed.UserID
		session.SourceFormat = string(KindJSONEnvelope)
		return session, nil

	case parsed.DCID != nil && parsed.AuthKey != nil:
		authKey, err := base64.StdEncoding.DecodeString(*parsed.AuthKey)
		if err != nil {
			return core.CanonicalSession{}, core.NewCorruptSessionError(
				"format: json envelope auth_key is not base64",
			)
		}
		if len(authKey) != core.AuthKeySize {
			return core.CanonicalSession{}, core.NewCorruptSessionError(
				"format: json envelope auth_key has wrong size",
			)
		}
		endpoint, err := core.LookupDCEndpoint(*parsed.DCID)
		if err != nil {
			return core.CanonicalSession{}, core.NewCorruptSessionError(
				"format: json envelope names an unknown dc",
			)
		}
		return core.CanonicalSession{
			AuthKey:       authKey,
			DCID:          *parsed.DCID,
			ServerAddress: endpoint.Address,
			Port:          endpoint.Port,
			PhoneNumber:   strings.TrimSpace(parsed.PhoneNumber),
			AccountID:     parsed.UserID,
			SourceFormat:  string(KindJSONEnvelope),
		}, nil
	}

	return core.CanonicalSession{}, core.NewCorruptSessionError(
		"format: json envelope requires session_string or dc_id plus auth_key",
	)
}
