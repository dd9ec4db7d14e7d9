package asi

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Reply classification markers.
const (
	ackMarker = ":A"
	errMarker = ":N"
)

// DecodeResponse parses one raw reply into its payload.
//
// The dialect's response terminator is stripped, embedded CR bytes are
// normalized to LF (multi-line replies separate lines with bare CR), non-ASCII
// bytes are rejected and trailing whitespace is trimmed. Classification:
//
//   - ":N" replies decode into a *DeviceError and never yield a payload.
//   - ":A" replies yield the text after the marker (AckMarkerLen bytes,
//     clamped to the reply length), trimmed on both sides.
//   - Anything else is returned verbatim, covering identity queries and
//     single-character status flags that skip the ":A" marker.
//
// DecodeResponse guarantees only marker stripping and line normalization.
// Payloads may carry embedded "=" and multi-field text such as
// ":X=100000.00000 A"; splitting those fields is the caller's concern.
func (d *Dialect) DecodeResponse(raw []byte) (string, error) {
	text := bytes.TrimSuffix(raw, d.responseTerm)
	text = bytes.ReplaceAll(text, []byte{'\r'}, []byte{'\n'})

	for _, b := range text {
		if b > unicode.MaxASCII {
			return "", fmt.Errorf("%w: non-ASCII byte 0x%02x in reply", ErrMalformedResponse, b)
		}
	}

	s := strings.TrimRightFunc(string(text), unicode.IsSpace)

	switch {
	case strings.HasPrefix(s, errMarker):
		code, err := parseErrorCode(s)
		if err != nil {
			return "", err
		}
		return "", &DeviceError{Code: code}

	case strings.HasPrefix(s, ackMarker):
		off := d.ackMarkerLen
		if off > len(s) {
			off = len(s)
		}
		return strings.TrimSpace(s[off:]), nil

	default:
		return s, nil
	}
}

// parseErrorCode extracts the numeric code from a ":N" reply. The sign
// character some firmware builds emit after the marker is skipped, so ":N-4"
// and ":N004" both decode to code 4.
func parseErrorCode(s string) (int, error) {
	body := strings.TrimSpace(s[len(errMarker):])
	body = strings.TrimPrefix(body, "-")
	body = strings.TrimPrefix(body, "+")
	if body == "" {
		return 0, fmt.Errorf("%w: error reply %q carries no code", ErrMalformedResponse, s)
	}

	code, err := strconv.Atoi(body)
	if err != nil {
		return 0, fmt.Errorf("%w: error reply %q carries a non-numeric code", ErrMalformedResponse, s)
	}

	return code, nil
}

// parseValueField extracts the numeric field of a "label=value" style payload:
// the first whitespace-delimited token after the last "=". Replies such as
// "X=100000.000000", ":X=100000.00000 A" (marker returned verbatim) and
// "S=12.500" all resolve to their numeric value.
func parseValueField(payload string) (float64, error) {
	s := payload
	if idx := strings.LastIndexByte(payload, '='); idx >= 0 {
		s = payload[idx+1:]
	}

	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, fmt.Errorf("%w: no value field in %q", ErrMalformedResponse, payload)
	}

	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: non-numeric value field %q in %q", ErrMalformedResponse, fields[0], payload)
	}

	return v, nil
}

// parseLeadingFloat parses the first whitespace-delimited field of a payload
// as a number, the shape of position replies.
func parseLeadingFloat(payload string) (float64, error) {
	fields := strings.Fields(payload)
	if len(fields) == 0 {
		return 0, fmt.Errorf("%w: empty numeric reply", ErrMalformedResponse)
	}

	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: non-numeric reply field %q", ErrMalformedResponse, fields[0])
	}

	return v, nil
}
