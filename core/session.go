package core

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strings"
)

const AuthKeySize = 256

const stringSessionVersion = '1'

var (
	ErrAuthKeySize    = errors.New("core: auth key must be 256 bytes")
	ErrUnknownDC      = errors.New("core: unknown data-center id")
	ErrMalformedFrame = errors.New("core: malformed session frame")
)

// DCEndpoint is a production data-center endpoint.
type DCEndpoint struct {
	Address string
	Port    int
}

// dcEndpoints maps data-center ids to their well-known production endpoints,
// used when a source format carries only the dc id.
var dcEndpoints = map[int]DCEndpoint{
	1: {Address: "149.154.175.53", Port: 443},
	2: {Address: "149.154.167.51", Port: 443},
	3: {Address: "149.154.175.100", Port: 443},
	4: {Address: "149.154.167.91", Port: 443},
	5: {Address: "91.108.56.130", Port: 443},
}

// LookupDCEndpoint resolves a dc id to its endpoint.
func LookupDCEndpoint(dcID int) (DCEndpoint, error) {
	endpoint, ok := dcEndpoints[dcID]
	if !ok {
		return DCEndpoint{}, fmt.Errorf("%w: %d", ErrUnknownDC, dcID)
	}
	return endpoint, nil
}

// ValidDC reports whether the id identifies a known data center.
func ValidDC(dcID int) bool {
	_, ok := dcEndpoints[dcID]
	return ok
}

// CanonicalSession is the format-independent credential bundle. Exactly one
// exists per AccountRecord; it is immutable once created and re-import
// replaces it wholesale.
type CanonicalSession struct {
	AuthKey       []byte
	DCID          int
	ServerAddress string
	Port          int
	PhoneNumber   string
	AccountID     int64
	Version       int
	SourceFormat  string
}

func (s CanonicalSession) Validate() error {
	if len(s.AuthKey) != AuthKeySize {
		return fmt.Errorf("%w: got %d", ErrAuthKeySize, len(s.AuthKey))
	}
	if !ValidDC(s.DCID) {
		return fmt.Errorf("%w: %d", ErrUnknownDC, s.DCID)
	}
	if strings.TrimSpace(s.ServerAddress) == "" || s.Port <= 0 {
		return fmt.Errorf("core: canonical session requires a server endpoint")
	}
	if strings.TrimSpace(s.SourceFormat) == "" {
		return fmt.Errorf("core: canonical session requires a source format tag")
	}
	return nil
}

// Equal compares two sessions byte for byte.
func (s CanonicalSession) Equal(other CanonicalSession) bool {
	if s.DCID != other.DCID || s.Port != other.Port || s.AccountID != other.AccountID ||
		s.Version != other.Version || s.ServerAddress != other.ServerAddress ||
		s.PhoneNumber != other.PhoneNumber || s.SourceFormat != other.SourceFormat {
		return false
	}
	if len(s.AuthKey) != len(other.AuthKey) {
		return false
	}
	for i := range s.AuthKey {
		if s.AuthKey[i] != other.AuthKey[i] {
			return false
		}
	}
	return true
}

// ExportString renders the session in the portable string form handed to the
// buyer at transfer: a version character followed by the base64url encoding
// of the big-endian frame dc_id(1) | ip(4|16) | port(2) | auth_key(256).
func (s CanonicalSession) ExportString() (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	ip := net.ParseIP(s.ServerAddress)
	if ip == nil {
		return "", fmt.Errorf("core: server address %q is not an ip", s.ServerAddress)
	}
	ipBytes := ip.To4()
	if ipBytes == nil {
		ipBytes = ip.To16()
	}

	frame := make([]byte, 0, 1+len(ipBytes)+2+AuthKeySize)
	frame = append(frame, byte(s.DCID))
	frame = append(frame, ipBytes...)
	frame = binary.BigEndian.AppendUint16(frame, uint16(s.Port))
	frame = append(frame, s.AuthKey...)

	return string(stringSessionVersion) + base64.URLEncoding.EncodeToString(frame), nil
}

// DecodeStringSession parses the portable string-session form. The frame is
// size-exact: anything truncated, padded or of an unknown ip width fails.
func DecodeStringSession(value string) (CanonicalSession, error) {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) < 2 || trimmed[0] != stringSessionVersion {
		return CanonicalSession{}, fmt.Errorf("%w: missing version marker", ErrMalformedFrame)
	}
	frame, err := base64.URLEncoding.DecodeString(trimmed[1:])
	if err != nil {
		return CanonicalSession{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var ipLen int
	switch len(frame) {
	case 1 + 4 + 2 + AuthKeySize:
		ipLen = 4
	case 1 + 16 + 2 + AuthKeySize:
		ipLen = 16
	default:
		return CanonicalSession{}, fmt.Errorf("%w: unexpected frame length %d", ErrMalformedFrame, len(frame))
	}

	dcID := int(frame[0])
	if !ValidDC(dcID) {
		return CanonicalSession{}, fmt.Errorf("%w: %d", ErrUnknownDC, dcID)
	}
	ip := net.IP(frame[1 : 1+ipLen])
	port := int(binary.BigEndian.Uint16(frame[1+ipLen : 1+ipLen+2]))
	authKey := make([]byte, AuthKeySize)
	copy(authKey, frame[1+ipLen+2:])

	return CanonicalSession{
		AuthKey:       authKey,
		DCID:          dcID,
		ServerAddress: ip.String(),
		Port:          port,
	}, nil
}
