package format

import (
	"strings"

	"github.com/goliatone/go-sessionvault/core"
)

// StringSessionParser decodes the portable binary-framed string form. The
// frame is big-endian and size-exact; anything truncated or mis-framed is a
// corrupt session, never a partial one.
type StringSessionParser struct{}

func (StringSessionParser) Kind() Kind {
	return KindStringSession
}

func (StringSessionParser) Parse(upload core.RawUpload) (core.CanonicalSession, error) {
	session, err := core.DecodeStringSession(strings.TrimSpace(string(upload.Data)))
	if err != nil {
		return core.CanonicalSession{}, core.NewCorruptSessionError(err.Error())
	}
	session.SourceFormat = string(KindStringSession)
	return session, nil
}
