package jpeg

// Quantization table layout inside a DQT segment.
const (
	quantEntrySize = 65 // precision/id byte + 64 coefficients
	quantTableSize = 64
	// minQuantStream is SOI plus one DQT segment holding a single table.
	minQuantStream = 69
)

// Table ids recognized by the locator. Id 0 is luma, id 1 chroma by convention.
const (
	lumaTableID   = 0
	chromaTableID = 1
	extraTableID  = 2
)

// TableView is a read-only view of 64 quantization coefficients inside the
// caller's JPEG buffer. It borrows that buffer: the view is valid only while
// the buffer is alive and unmodified. Use Matrix to keep a copy.
type TableView struct {
	coeffs []byte
}

// Valid reports whether the view refers to a table.
func (v TableView) Valid() bool {
	return len(v.coeffs) == quantTableSize
}

// At returns coefficient i, in the order stored in the stream. It returns 0
// for an invalid view or an index outside [0, 64).
func (v TableView) At(i int) uint8 {
	if i < 0 || i >= len(v.coeffs) {
		return 0
	}
	return v.coeffs[i]
}

// Matrix returns a copy of the coefficients. The zero value is returned for
// an invalid view.
func (v TableView) Matrix() [64]uint8 {
	var m [64]uint8
	copy(m[:], v.coeffs)
	return m
}

// QuantTables is the result of FindQuantizer.
type QuantTables struct {
	Luma   TableView
	Chroma TableView
	// Count is the number of distinct table ids among 0, 1 and 2 that were seen.
	Count int
}

// FindQuantizer locates the luma (id 0) and chroma (id 1) quantization tables
// declared before the first scan. When a table id is declared more than once,
// the last declaration wins. Table id 2 is counted but not returned. A 16-bit
// table is neither counted nor returned, and ends the walk of its segment.
//
// Scanning is best effort: a stream that is too short, lacks an SOI marker or
// is truncated mid-segment yields whatever was found up to that point, which
// may be nothing.
func FindQuantizer(data []byte) QuantTables {
	var (
		q    QuantTables
		seen [3]bool
	)
	if len(data) < minQuantStream || !hasSOI(data) {
		return q
	}
	end := len(data) - safetyMargin
	pos := firstMarker(data, end)
	for pos < end {
		if data[pos] == 0xff && data[pos+1] == 0xff {
			pos++
			continue
		}
		seg, err := segmentAt(data, pos)
		if err != nil || pos+seg.size > end {
			break
		}
		if seg.marker == SOS {
			break
		}
		if seg.marker == DQT {
			walkDQT(data[pos:pos+seg.size], &q, &seen)
		}
		pos += seg.size
	}
	for _, s := range seen {
		if s {
			q.Count++
		}
	}
	return q
}

// walkDQT records the 8-bit tables of one DQT segment, marker included.
func walkDQT(seg []byte, q *QuantTables, seen *[3]bool) {
	for i := segmentOverhead; i+quantEntrySize <= len(seg); i += quantEntrySize {
		if seg[i]>>4 != 0 {
			// 16-bit entries have a different size; the rest of the
			// segment cannot be walked.
			return
		}
		id := seg[i] & 0x0f
		view := TableView{coeffs: seg[i+1 : i+quantEntrySize : i+quantEntrySize]}
		switch id {
		case lumaTableID:
			q.Luma = view
		case chromaTableID:
			q.Chroma = view
		case extraTableID:
		default:
			continue
		}
		seen[id] = true
	}
}
