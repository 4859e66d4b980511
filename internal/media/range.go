package media

import (
	"strconv"
	"strings"
)

const rangeUnit = "bytes="

// byteRange is an inclusive byte interval resolved against a content length.
type byteRange struct {
	start, end int64
}

func (r byteRange) length() int64 {
	return r.end - r.start + 1
}

// parseRange resolves a single "bytes=<start>-<end>" range against length.
// Empty start means 0, empty end means length-1 and end is clamped to
// length-1. Suffix ranges, multi-ranges and anything malformed are rejected.
func parseRange(header string, length int64) (byteRange, bool) {
	header = strings.TrimSpace(header)
	// range units are case-insensitive
	if len(header) < len(rangeUnit) || !strings.EqualFold(header[:len(rangeUnit)], rangeUnit) {
		return byteRange{}, false
	}
	rangeSet := header[len(rangeUnit):]
	if strings.Contains(rangeSet, ",") {
		return byteRange{}, false
	}

	startStr, endStr, ok := strings.Cut(strings.TrimSpace(rangeSet), "-")
	if !ok {
		return byteRange{}, false
	}
	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)

	// "bytes=-N" addresses the last N bytes; not supported.
	if startStr == "" && endStr != "" {
		return byteRange{}, false
	}

	var r byteRange
	if startStr != "" {
		v, err := parseOffset(startStr)
		if err != nil {
			return byteRange{}, false
		}
		r.start = v
	}

	r.end = length - 1
	if endStr != "" {
		v, err := parseOffset(endStr)
		if err != nil {
			return byteRange{}, false
		}
		r.end = min(v, length-1)
	}

	if r.start >= length || r.start > r.end {
		return byteRange{}, false
	}
	return r, true
}

// parseOffset accepts only plain decimal digits, so signs and spaces inside
// the number are malformed.
func parseOffset(s string) (int64, error) {
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, strconv.ErrSyntax
		}
	}
	return strconv.ParseInt(s, 10, 64)
}
