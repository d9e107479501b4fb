package jpeg

// Frame header byte offsets, relative to the marker prefix.
const (
	frameHeightOffset     = 5
	frameWidthOffset      = 7
	frameComponentsOffset = 9
	// frameMinSize covers marker, length, precision, height, width and
	// component count, plus the first component id.
	frameMinSize = 11
	// frameComponentSize is id, sampling factors and table selector.
	frameComponentSize = 3
)

// Sampling factor bytes that identify 4:2:0 subsampling.
const (
	lumaSampling420   = 0x22
	chromaSampling420 = 0x11
)

// Component is one entry of a frame header.
type Component struct {
	ID         uint8
	H, V       int // sampling factors
	QuantTable uint8
}

// Frame is the decoded content of a baseline or extended-sequential frame header.
type Frame struct {
	Precision  int
	Width      int
	Height     int
	Components []Component
	// YUV420 is set only for three components sampled 0x22, 0x11, 0x11.
	YUV420 bool
}

// Subsampling names the chroma layout of the frame.
func (f Frame) Subsampling() string {
	if len(f.Components) == 1 {
		return "gray"
	}
	if len(f.Components) != 3 {
		return "other"
	}
	y, cb, cr := f.Components[0], f.Components[1], f.Components[2]
	if cb.H != cr.H || cb.V != cr.V || cb.H == 0 || cb.V == 0 {
		return "other"
	}
	if y.H%cb.H != 0 || y.V%cb.V != 0 {
		return "other"
	}
	switch [2]int{y.H / cb.H, y.V / cb.V} {
	case [2]int{1, 1}:
		return "4:4:4"
	case [2]int{2, 1}:
		return "4:2:2"
	case [2]int{2, 2}:
		return "4:2:0"
	case [2]int{1, 2}:
		return "4:4:0"
	case [2]int{4, 1}:
		return "4:1:1"
	}
	return "other"
}

func findFrame(data []byte) (int, error) {
	pos, err := findMarker(data, SOF0, SOF1)
	if err != nil {
		return 0, err
	}
	if len(data)-pos < frameMinSize {
		return 0, ErrTruncated
	}
	return pos, nil
}

// Dimensions returns the pixel width and height declared by the first
// baseline or extended-sequential frame header. Zero sizes are returned as is.
func Dimensions(data []byte) (width, height int, err error) {
	pos, err := findFrame(data)
	if err != nil {
		return 0, 0, err
	}
	return be16(data, pos+frameWidthOffset), be16(data, pos+frameHeightOffset), nil
}

// ParseFrame decodes the first baseline or extended-sequential frame header,
// including the per-component sampling factors.
//
// When the header is cut short inside the component list, the returned Frame
// still carries Width and Height, YUV420 is false, and err is ErrTruncated.
func ParseFrame(data []byte) (Frame, error) {
	pos, err := findFrame(data)
	if err != nil {
		return Frame{}, err
	}
	f := Frame{
		Precision: int(data[pos+4]),
		Height:    be16(data, pos+frameHeightOffset),
		Width:     be16(data, pos+frameWidthOffset),
	}
	n := int(data[pos+frameComponentsOffset])
	left := len(data) - pos
	if left < frameMinSize+frameComponentSize*n {
		return f, ErrTruncated
	}
	f.Components = make([]Component, n)
	for c := range f.Components {
		off := pos + frameMinSize - 1 + frameComponentSize*c
		f.Components[c] = Component{
			ID:         data[off],
			H:          int(data[off+1] >> 4),
			V:          int(data[off+1] & 0x0f),
			QuantTable: data[off+2],
		}
	}
	f.YUV420 = n == 3
	for c := 0; f.YUV420 && c < 3; c++ {
		want := byte(chromaSampling420)
		if c == 0 {
			want = lumaSampling420
		}
		f.YUV420 = data[pos+frameMinSize+frameComponentSize*c] == want
	}
	return f, nil
}

// IsYUV420 reports whether the frame header declares 4:2:0 subsampling.
func IsYUV420(data []byte) (bool, error) {
	f, err := ParseFrame(data)
	return f.YUV420, err
}
