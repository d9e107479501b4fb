// Package risk scores how much an image would suffer from chroma subsampling
// and recommends a subsampling mode for encoding it.
//
// Pixels are reduced to color indices, and each pixel is scored by looking up
// the pairwise sharpness of itself, its right neighbor and the pixel below.
// The color conversions and the sharpness table are injected through Tables,
// so the scorer itself holds no global state.
package risk

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidImage is returned for non-positive sizes, a stride shorter
	// than a row, or a buffer too small for the declared geometry.
	ErrInvalidImage = errors.New("risk: invalid image geometry")
	// ErrInvalidTables is returned when Tables are inconsistent.
	ErrInvalidTables = errors.New("risk: invalid scoring tables")
)

const (
	// noiseLevel is the highest per-pixel score treated as noise.
	noiseLevel = 4
	// maxAverage is the average pixel score mapped to a risk of 100.
	maxAverage = 25.
	// minCoverage is the percentage of pixels that must score above the
	// noise level for the average to count.
	minCoverage = 1.

	thresholdYUV420      = 40.
	thresholdSharpYUV420 = 70.
)

// Mode is a chroma subsampling recommendation.
type Mode int

const (
	YUV420      Mode = 1 // standard 4:2:0
	SharpYUV420 Mode = 2 // 4:2:0 with sharp RGB->YUV conversion
	YUV444      Mode = 3 // no subsampling
)

func (m Mode) String() string {
	switch m {
	case YUV420:
		return "yuv420"
	case SharpYUV420:
		return "sharp-yuv420"
	case YUV444:
		return "yuv444"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Recommend maps a risk score in [0, 100] to a subsampling mode.
func Recommend(score float64) Mode {
	switch {
	case score < thresholdYUV420:
		return YUV420
	case score < thresholdSharpYUV420:
		return SharpYUV420
	}
	return YUV444
}

// Result is the riskiness of a whole image.
type Result struct {
	Score float64 // in [0, 100]
	Mode  Mode
}

// RowIndexer converts width packed RGB pixels from rgb into color indices in
// dst. Indices must be below Levels³.
type RowIndexer func(rgb []byte, width int, dst []uint16)

// BlockConverter converts the 8x8 packed RGB block at rgb, rows stride bytes
// apart, into Y, U and V planes of 64 samples each, centered on zero.
type BlockConverter func(rgb []byte, stride int, dst *[3 * 64]int16)

// Tables are the collaborators a Scorer depends on.
type Tables struct {
	// Levels is the number of quantization levels per color channel.
	Levels int
	// Sharpness holds the score of every pair of color indices a and b at
	// a + Levels³*b.
	Sharpness []uint8
	IndexRow  RowIndexer
	YUVBlock  BlockConverter
}

// Scorer computes riskiness scores. It is immutable and safe for concurrent use.
type Scorer struct {
	colors    int
	levels    int
	sharpness []uint8
	indexRow  RowIndexer
	yuvBlock  BlockConverter
}

// NewScorer validates t and returns a Scorer using it.
func NewScorer(t Tables) (*Scorer, error) {
	if t.Levels < 2 || t.IndexRow == nil || t.YUVBlock == nil {
		return nil, ErrInvalidTables
	}
	colors := t.Levels * t.Levels * t.Levels
	if len(t.Sharpness) != colors*colors {
		return nil, fmt.Errorf("%w: sharpness table has %d entries, want %d",
			ErrInvalidTables, len(t.Sharpness), colors*colors)
	}
	return &Scorer{
		colors:    colors,
		levels:    t.Levels,
		sharpness: t.Sharpness,
		indexRow:  t.IndexRow,
		yuvBlock:  t.YUVBlock,
	}, nil
}

// pixelScore sums the pairwise sharpness of a pixel, its right neighbor and
// its bottom neighbor.
func (s *Scorer) pixelScore(idx0, idx1, idx2 int) int {
	return int(s.sharpness[idx0+s.colors*idx1]) +
		int(s.sharpness[idx0+s.colors*idx2]) +
		int(s.sharpness[idx1+s.colors*idx2])
}

// rescale maps an average pixel score to [0, 100].
func rescale(avg float64) float64 {
	if avg > maxAverage {
		return 100
	}
	return avg * 100 / maxAverage
}

// fits reports whether n bytes hold height rows of width packed RGB pixels,
// stride bytes apart. The last row may stop after its last pixel. Bounds are
// checked by division so huge arguments cannot overflow.
func fits(n, width, height, stride int) bool {
	if width <= 0 || height <= 0 || width > n/3 || stride < 3*width {
		return false
	}
	return height == 1 || stride <= (n-3*width)/(height-1)
}

// Image scores a packed RGB image, rows stride bytes apart. The last column
// and the last row only serve as neighbors.
func (s *Scorer) Image(rgb []byte, width, height, stride int) (Result, error) {
	if !fits(len(rgb), width, height, stride) {
		return Result{}, ErrInvalidImage
	}

	row1 := make([]uint16, width)
	row2 := make([]uint16, width)
	total, count := 0., 0.

	s.indexRow(rgb, width, row2)
	for j := 1; j < height; j++ {
		row1, row2 = row2, row1
		s.indexRow(rgb[j*stride:], width, row2)
		for i := 0; i < width-1; i++ {
			score := s.pixelScore(int(row1[i]), int(row1[i+1]), int(row2[i]))
			if score > noiseLevel {
				total += float64(score)
				count++
			}
		}
	}
	if count > 0 {
		total /= count
	}
	if 100*count/float64(width*height) < minCoverage {
		total = 0
	}
	score := rescale(total)
	return Result{Score: score, Mode: Recommend(score)}, nil
}
