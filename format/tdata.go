package format

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"

	"github.com/goliatone/go-sessionvault/core"
)

var tdfMagic = []byte("TDF$")

const (
	tdfHeaderSize   = 8  // magic + little-endian uint32 version
	tdfChecksumSize = 16 // trailing md5
	tdfMinPayload   = 300
)

// TDataParser extracts the auth key from a desktop-client bundle. The
// key_datas member is a TDF container: after the container chain is verified
// (magic, version, trailing checksum over payload+length+version+magic), the
// dc id and the 256-byte auth key are located through three layered
// strategies, tried in order.
type TDataParser struct{}

func (TDataParser) Kind() Kind {
	return KindTData
}

func (TDataParser) Parse(upload core.RawUpload) (core.CanonicalSession, error) {
	raw, ok := upload.Bundle[tdataKeyFile]
	if !ok {
		return core.CanonicalSession{}, core.NewUnsupportedFormatError(
			"format: tdata bundle lacks a key_datas file",
		)
	}

	payload, err := openTDFContainer(raw)
	if err != nil {
		return core.CanonicalSession{}, err
	}
	if len(payload) < tdfMinPayload {
		return core.CanonicalSession{}, core.NewCorruptSessionError(
			"format: key_datas payload too small",
		)
	}

	strategies := []func([]byte) (int, []byte, bool){
		scanKeyDatasHeaderOffset,
		scanKeyDatasExtendedHeader,
		scanKeyDatasPattern,
	}
	for _, strategy := range strategies {
		dcID, authKey, found := strategy(payload)
		if !found {
			continue
		}
		endpoint, err := core.LookupDCEndpoint(dcID)
		if err != nil {
			continue
		}
		return core.CanonicalSession{
			AuthKey:       authKey,
			DCID:          dcID,
			ServerAddress: endpoint.Address,
			Port:          endpoint.Port,
			SourceFormat:  string(KindTData),
		}, nil
	}

	return core.CanonicalSession{}, core.NewCorruptSessionError(
		"format: key_datas derivation chain yielded no dc id and auth key",
	)
}

// openTDFContainer validates the outer container and returns its payload.
// The trailing checksum covers payload bytes, payload length, version and
// magic, in that order.
func openTDFContainer(raw []byte) ([]byte, error) {
	if len(raw) < tdfHeaderSize+tdfChecksumSize {
		return nil, core.NewCorruptSessionError("format: key_datas container truncated")
	}
	if !bytes.HasPrefix(raw, tdfMagic) {
		return nil, core.NewCorruptSessionError("format: key_datas container magic mismatch")
	}
	version := binary.LittleEndian.Uint32(raw[4:8])
	payload := raw[tdfHeaderSize : len(raw)-tdfChecksumSize]
	stored := raw[len(raw)-tdfChecksumSize:]

	sum := md5.New()
	sum.Write(payload)
	sum.Write(binary.LittleEndian.AppendUint32(nil, uint32(len(payload))))
	sum.Write(binary.LittleEndian.AppendUint32(nil, version))
	sum.Write(tdfMagic)
	if !bytes.Equal(sum.Sum(nil), stored) {
		return nil, core.NewCorruptSessionError("format: key_datas container checksum mismatch")
	}
	return payload, nil
}

// scanKeyDatasHeaderOffset is the primary layout: dc id as little-endian
// uint32 at offset 4, auth key somewhere after it.
func scanKeyDatasHeaderOffset(data []byte) (int, []byte, bool) {
	const offset = 4
	if len(data) < offset+4 {
		return 0, nil, false
	}
	dcID := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
	if !core.ValidDC(dcID) {
		return 0, nil, false
	}
	key, found := scanForAuthKey(data, offset+4, len(data)-core.AuthKeySize, 1, 10)
	return dcID, key, found
}

// scanKeyDatasExtendedHeader skips a longer header; the dc id may be stored
// in either byte order there.
func scanKeyDatasExtendedHeader(data []byte) (int, []byte, bool) {
	const offset = 16
	if len(data) < offset+4 {
		return 0, nil, false
	}
	dcID := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
	if !core.ValidDC(dcID) {
		dcID = int(binary.BigEndian.Uint32(data[offset : offset+4]))
		if !core.ValidDC(dcID) {
			return 0, nil, false
		}
	}
	key, found := scanForAuthKey(data, offset+4, len(data)-core.AuthKeySize, 4, 20)
	return dcID, key, found
}

// scanKeyDatasPattern walks the first hundred bytes looking for any plausible
// dc id, then searches its neighborhood for key material.
func scanKeyDatasPattern(data []byte) (int, []byte, bool) {
	limit := len(data) - core.AuthKeySize - 4
	if limit > 100 {
		limit = 100
	}
	for offset := 0; offset+4 <= limit; offset += 4 {
		dcID := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
		if !core.ValidDC(dcID) {
			continue
		}
		start := offset - 50
		if start < 0 {
			start = 0
		}
		end := offset + 100
		if end > len(data)-core.AuthKeySize {
			end = len(data) - core.AuthKeySize
		}
		if key, found := scanForAuthKey(data, start, end, 4, 15); found {
			return dcID, key, true
		}
	}
	return 0, nil, false
}

// scanForAuthKey slides a 256-byte window over [start, end) in the given
// step, accepting the first window with enough distinct bytes to look like
// key material rather than padding.
func scanForAuthKey(data []byte, start, end, step, minDistinct int) ([]byte, bool) {
	if start < 0 {
		start = 0
	}
	for i := start; i <= end && i+core.AuthKeySize <= len(data); i += step {
		window := data[i : i+core.AuthKeySize]
		if distinctBytes(window) > minDistinct {
			key := make([]byte, core.AuthKeySize)
			copy(key, window)
			return key, true
		}
	}
	return nil, false
}

func distinctBytes(data []byte) int {
	var seen [256]bool
	count := 0
	for _, b := range data {
		if !seen[b] {
			seen[b] = true
			count++
		}
	}
	return count
}
