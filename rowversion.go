package main

import (
	"encoding/base64"
	"encoding/binary"
	"strings"
)

// encodeRowVersion renders a row version as a strong ETag: the 8-byte
// big-endian value, base64url without padding, in double quotes.
func encodeRowVersion(v int64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	return `"` + base64.RawURLEncoding.EncodeToString(buf[:]) + `"`
}

// decodeRowVersion parses a single entity tag produced by encodeRowVersion.
// A W/ prefix is accepted and ignored.
func decodeRowVersion(tag string) (int64, bool) {
	tag = strings.TrimSpace(tag)
	tag = strings.TrimPrefix(tag, "W/")
	if len(tag) < 2 || tag[0] != '"' || tag[len(tag)-1] != '"' {
		return 0, false
	}
	raw, err := base64.RawURLEncoding.DecodeString(tag[1 : len(tag)-1])
	if err != nil || len(raw) != 8 {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(raw)), true
}

// ifMatch is a parsed If-Match header.
type ifMatch struct {
	Any      bool
	Versions []int64
}

// matches reports whether the stored version satisfies the precondition.
func (m ifMatch) matches(v int64) bool {
	if m.Any {
		return true
	}
	for _, want := range m.Versions {
		if want == v {
			return true
		}
	}
	return false
}

// parseIfMatch parses an If-Match header value. present is false when the
// header is empty; err is non-nil when any listed tag is malformed.
func parseIfMatch(header string) (m ifMatch, present bool, err error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return ifMatch{}, false, nil
	}
	if header == "*" {
		return ifMatch{Any: true}, true, nil
	}
	for _, part := range strings.Split(header, ",") {
		v, ok := decodeRowVersion(part)
		if !ok {
			return ifMatch{}, true, invalidf("malformed If-Match header")
		}
		m.Versions = append(m.Versions, v)
	}
	return m, true, nil
}
