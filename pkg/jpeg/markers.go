// Package jpeg inspects JPEG marker streams without decoding entropy-coded data.
//
// Every function works directly on the caller's byte slice. Nothing is retained
// between calls, and no read ever goes past len(data): malformed or truncated
// input surfaces as an error, never as a panic.
package jpeg

import (
	"encoding/binary"
	"errors"
)

var (
	// ErrNotFound is returned when the requested marker is absent.
	ErrNotFound = errors.New("jpeg: marker not found")
	// ErrTruncated is returned when a segment claims more bytes than the buffer holds.
	ErrTruncated = errors.New("jpeg: truncated segment")
	// ErrMalformed is returned when a segment boundary does not hold a marker.
	ErrMalformed = errors.New("jpeg: malformed marker stream")
)

// Marker is a two-byte JPEG marker code, prefix included (0xFFxx).
type Marker uint16

// Markers understood by the scanner.
const (
	SOF0 Marker = 0xffc0 // Start Of Frame (Baseline Sequential).
	SOF1 Marker = 0xffc1 // Start Of Frame (Extended Sequential).
	SOF2 Marker = 0xffc2 // Start Of Frame (Progressive).
	DHT  Marker = 0xffc4 // Define Huffman Table.
	SOI  Marker = 0xffd8 // Start Of Image.
	EOI  Marker = 0xffd9 // End Of Image.
	SOS  Marker = 0xffda // Start Of Scan.
	DQT  Marker = 0xffdb // Define Quantization Table.
	DRI  Marker = 0xffdd // Define Restart Interval.
	APP0 Marker = 0xffe0 // APPlication segment 0 (JFIF).
	COM  Marker = 0xfffe // COMment.
)

// safetyMargin is the number of trailing bytes the scanner never starts a
// marker header in, so a header read of up to 8 bytes is always in bounds.
const safetyMargin = 8

// segmentOverhead is the marker code plus the length field.
const segmentOverhead = 4

func be16(b []byte, off int) int {
	return int(binary.BigEndian.Uint16(b[off:]))
}

// hasSOI reports whether data begins with the start-of-image marker.
func hasSOI(data []byte) bool {
	return len(data) >= 2 && Marker(be16(data, 0)) == SOI
}

// firstMarker returns the offset of the first 0xFF byte after the SOI marker,
// or end when none is found before end.
func firstMarker(data []byte, end int) int {
	pos := 2
	for pos < end && data[pos] != 0xff {
		pos++
	}
	return pos
}

// segment describes one marker segment located by the scanner.
type segment struct {
	offset int    // offset of the 0xFF prefix
	marker Marker // marker code
	size   int    // marker code + length field + payload
}

// segmentAt decodes the segment header at pos. The caller guarantees
// pos+safetyMargin <= len(data).
func segmentAt(data []byte, pos int) (segment, error) {
	if data[pos] != 0xff {
		return segment{}, ErrMalformed
	}
	length := be16(data, pos+2)
	if length < 2 {
		return segment{}, ErrMalformed
	}
	return segment{
		offset: pos,
		marker: Marker(be16(data, pos)),
		size:   2 + length,
	}, nil
}

// findMarker scans forward from just after the SOI marker for the first
// segment whose marker is one of targets. It returns the offset of the marker
// prefix. The returned offset is always at least safetyMargin bytes away from
// the end of data.
//
// Segments are skipped by their declared length. A length that runs past the
// end of data yields ErrTruncated. Reaching a scan-start marker that was not
// requested ends the search with ErrNotFound, since only entropy-coded data
// follows it.
func findMarker(data []byte, targets ...Marker) (int, error) {
	if data == nil {
		return 0, ErrNotFound
	}
	end := len(data) - safetyMargin
	pos := firstMarker(data, end)
	for pos < end {
		// 0xFF fill bytes may pad the space between segments.
		if data[pos] == 0xff && data[pos+1] == 0xff {
			pos++
			continue
		}
		seg, err := segmentAt(data, pos)
		if err != nil {
			return 0, err
		}
		for _, t := range targets {
			if seg.marker == t {
				return pos, nil
			}
		}
		if seg.marker == SOS {
			return 0, ErrNotFound
		}
		if seg.size > len(data)-pos {
			return 0, ErrTruncated
		}
		pos += seg.size
	}
	return 0, ErrNotFound
}

// FindMarker returns the offset of the first segment carrying one of the
// given markers. See findMarker for the scanning rules.
func FindMarker(data []byte, targets ...Marker) (int, error) {
	return findMarker(data, targets...)
}
