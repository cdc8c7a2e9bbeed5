package parser

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ErrMalformedPing is returned for ping payloads that do not carry a decodable identity.
var ErrMalformedPing = errors.New("malformed ping payload")

// ErrAmbiguousLegacyID is returned by the legacy decoder when the sender suffix
// has more than one digit and cannot be read from the fixed offset.
var ErrAmbiguousLegacyID = errors.New("legacy ping id does not fit one digit")

const (
	maxNameLen   = 64
	legacyOffset = 5
)

// ParseRobotName splits a device name of the form <prefix><integer> (e.g. epuck12).
func ParseRobotName(name string) (prefix string, id int, err error) {
	i := strings.LastIndexFunc(name, func(r rune) bool { return !unicode.IsDigit(r) })
	prefix, digits := name[:i+1], name[i+1:]
	if prefix == "" || digits == "" {
		return "", 0, fmt.Errorf("robot name %q is not <prefix><integer>", name)
	}
	id, err = strconv.Atoi(digits)
	if err != nil {
		return "", 0, fmt.Errorf("robot name %q: %w", name, err)
	}
	return prefix, id, nil
}

// FramedPing carries the sender name as a netstring: "<len>:<name>,".
// The identity is length-delimited, so ids of any width decode.
type FramedPing struct{}

// Encode frames the sender name.
func (FramedPing) Encode(name string) []byte {
	return []byte(strconv.Itoa(len(name)) + ":" + name + ",")
}

// Decode returns the unique id carried in a framed ping.
func (FramedPing) Decode(payload []byte) (int, error) {
	payload = bytes.TrimRight(payload, "\x00")
	colon := bytes.IndexByte(payload, ':')
	if colon <= 0 || colon > 3 {
		return 0, ErrMalformedPing
	}
	n, err := strconv.Atoi(string(payload[:colon]))
	if err != nil || n <= 0 || n > maxNameLen {
		return 0, ErrMalformedPing
	}
	body := payload[colon+1:]
	if len(body) != n+1 || body[n] != ',' {
		return 0, ErrMalformedPing
	}
	_, id, err := ParseRobotName(string(body[:n]))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedPing, err)
	}
	return id, nil
}

// LegacyPing is the NUL-terminated name with the sender digit read at a fixed offset.
// Names whose numeric suffix is wider than one digit are rejected.
type LegacyPing struct{}

// Encode returns the NUL-terminated name.
func (LegacyPing) Encode(name string) []byte {
	return append([]byte(name), 0)
}

// Decode reads the single sender digit.
func (LegacyPing) Decode(payload []byte) (int, error) {
	if len(payload) <= legacyOffset {
		return 0, ErrMalformedPing
	}
	c := payload[legacyOffset]
	if c < '0' || c > '9' {
		return 0, ErrMalformedPing
	}
	if len(payload) > legacyOffset+1 && payload[legacyOffset+1] != 0 {
		return 0, ErrAmbiguousLegacyID
	}
	return int(c - '0'), nil
}
