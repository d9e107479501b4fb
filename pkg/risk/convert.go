package risk

import (
	"math"
	"sync"
)

// DefaultLevels is the per-channel level count of the default tables.
const DefaultLevels = 4

// maxPairScore is the score of the two most distant colors.
const maxPairScore = 24

// IndexRowFunc returns a RowIndexer that rounds each channel to one of levels
// steps and packs them as r + g*levels + b*levels².
func IndexRowFunc(levels int) RowIndexer {
	lut := make([]uint16, 256)
	for c := range lut {
		lut[c] = uint16((c*(levels-1) + 127) / 255)
	}
	l := uint16(levels)
	return func(rgb []byte, width int, dst []uint16) {
		for i := 0; i < width; i++ {
			p := rgb[3*i : 3*i+3 : 3*i+3]
			dst[i] = lut[p[0]] + lut[p[1]]*l + lut[p[2]]*l*l
		}
	}
}

// RGBToYUVBlock converts an 8x8 packed RGB block with the JFIF equations,
// in 16.16 fixed point, and centers every plane on zero.
func RGBToYUVBlock(rgb []byte, stride int, dst *[3 * 64]int16) {
	for j := 0; j < blockSize; j++ {
		row := rgb[j*stride : j*stride+3*blockSize]
		for i := 0; i < blockSize; i++ {
			r := int32(row[3*i])
			g := int32(row[3*i+1])
			b := int32(row[3*i+2])
			k := i + j*blockSize

			y := (19595*r + 38470*g + 7471*b + 1<<15) >> 16
			cb := (-11056*r - 21712*g + 32768*b + 1<<15) >> 16
			cr := (32768*r - 27440*g - 5328*b + 1<<15) >> 16

			dst[k] = clampCentered(y - 128)
			dst[k+64] = clampCentered(cb)
			dst[k+128] = clampCentered(cr)
		}
	}
}

func clampCentered(v int32) int16 {
	if v < -128 {
		return -128
	}
	if v > 127 {
		return 127
	}
	return int16(v)
}

// SharpnessTable builds a pairwise table for levels³ colors where the score
// of two colors grows linearly with their distance in level space, from 0
// for identical colors to maxPairScore for black against white.
func SharpnessTable(levels int) []uint8 {
	colors := levels * levels * levels
	table := make([]uint8, colors*colors)
	maxDist := float64(levels-1) * math.Sqrt(3)
	for a := 0; a < colors; a++ {
		ar, ag, ab := a%levels, (a/levels)%levels, a/(levels*levels)
		for b := 0; b < colors; b++ {
			br, bg, bb := b%levels, (b/levels)%levels, b/(levels*levels)
			dr, dg, db := float64(ar-br), float64(ag-bg), float64(ab-bb)
			d := math.Sqrt(dr*dr+dg*dg+db*db) / maxDist
			table[a+colors*b] = uint8(math.Round(d * maxPairScore))
		}
	}
	return table
}

var (
	defaultOnce   sync.Once
	defaultScorer *Scorer
)

// DefaultTables returns the portable converters and the distance-based
// sharpness table at DefaultLevels.
func DefaultTables() Tables {
	return Tables{
		Levels:    DefaultLevels,
		Sharpness: SharpnessTable(DefaultLevels),
		IndexRow:  IndexRowFunc(DefaultLevels),
		YUVBlock:  RGBToYUVBlock,
	}
}

// Default returns a shared Scorer built from DefaultTables.
func Default() *Scorer {
	defaultOnce.Do(func() {
		s, err := NewScorer(DefaultTables())
		if err != nil {
			panic(err)
		}
		defaultScorer = s
	})
	return defaultScorer
}

// ImageRiskiness scores a packed RGB image with the default tables.
func ImageRiskiness(rgb []byte, width, height, stride int) (Result, error) {
	return Default().Image(rgb, width, height, stride)
}

// BlockRiskiness scores an 8x8 packed RGB block with the default tables.
func BlockRiskiness(rgb []byte, stride int) (float64, BlockScores, error) {
	return Default().Block(rgb, stride)
}
