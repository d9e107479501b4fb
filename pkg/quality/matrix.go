package quality

// Matrix is a 64-entry quantization matrix, in the order used by the
// baseline matrices it is derived from (zig-zag, as stored in DQT segments).
type Matrix [64]uint8

// Baseline luma and chroma matrices from the JPEG standard (Annex K), in
// zig-zag order. These are the tables libjpeg scales by quality.
var (
	StdLuma = Matrix{
		16, 11, 12, 14, 12, 10, 16, 14,
		13, 14, 18, 17, 16, 19, 24, 40,
		26, 24, 22, 22, 24, 49, 35, 37,
		29, 40, 58, 51, 61, 60, 57, 51,
		56, 55, 64, 72, 92, 78, 64, 68,
		87, 69, 55, 56, 80, 109, 81, 87,
		95, 98, 103, 104, 103, 62, 77, 113,
		121, 112, 100, 120, 92, 101, 103, 99,
	}
	StdChroma = Matrix{
		17, 18, 18, 24, 21, 24, 47, 26,
		26, 47, 99, 66, 56, 66, 99, 99,
		99, 99, 99, 99, 99, 99, 99, 99,
		99, 99, 99, 99, 99, 99, 99, 99,
		99, 99, 99, 99, 99, 99, 99, 99,
		99, 99, 99, 99, 99, 99, 99, 99,
		99, 99, 99, 99, 99, 99, 99, 99,
		99, 99, 99, 99, 99, 99, 99, 99,
	}
)

// worstScore is above any possible sum of 64 squared byte differences.
const worstScore = 256*256*64 + 1

// Codec maps quality values to quantization matrices and back, relative to
// a pair of baseline matrices.
type Codec struct {
	luma, chroma Matrix
}

// NewCodec returns a Codec scaling the given baseline matrices.
func NewCodec(luma, chroma Matrix) *Codec {
	return &Codec{luma: luma, chroma: chroma}
}

// Default scales the standard Annex K matrices, like libjpeg does.
var Default = NewCodec(StdLuma, StdChroma)

func (c *Codec) baseline(forChroma bool) *Matrix {
	if forChroma {
		return &c.chroma
	}
	return &c.luma
}

// scaleFactor is the libjpeg mapping from quality to a percentage scale.
func scaleFactor(q int) uint64 {
	switch {
	case q <= 0:
		return 5000
	case q < 50:
		return uint64(5000 / q)
	case q < 100:
		return uint64(2 * (100 - q))
	}
	return 0
}

// scaleEntry returns round(b*factor/100) clipped to [1, 255].
// (v+50)*335545>>25 equals (v+50)/100 for every v the clip lets through;
// the product needs more than 32 bits.
func scaleEntry(b uint8, factor uint64) uint8 {
	v := uint64(b) * factor
	switch {
	case v < 50:
		return 1
	case v > 25449:
		return 255
	}
	return uint8(((v + 50) * 335545) >> 25)
}

// Matrix synthesizes the quantization matrix for quality q. Any int is
// accepted: q <= 0 behaves like 0 and q >= 100 like 100.
func (c *Codec) Matrix(q int, forChroma bool) Matrix {
	var m Matrix
	base := c.baseline(forChroma)
	factor := scaleFactor(q)
	for i, b := range base {
		m[i] = scaleEntry(b, factor)
	}
	return m
}

// Estimate returns the quality in [0, 100] whose synthesized matrix is
// closest to m in sum of squared differences. Ties go to the lowest quality.
func (c *Codec) Estimate(m Matrix, forChroma bool) int {
	q, _ := c.EstimateWithScore(m, forChroma)
	return q
}

// EstimateWithScore is Estimate that also returns the residual sum of
// squared differences. A zero score means m is exactly a scaled baseline.
func (c *Codec) EstimateWithScore(m Matrix, forChroma bool) (quality, score int) {
	base := c.baseline(forChroma)
	best, bestScore := 0, worstScore
	for q := 0; q <= 100; q++ {
		factor := scaleFactor(q)
		s := 0
		for i, b := range base {
			d := int(scaleEntry(b, factor)) - int(m[i])
			s += d * d
			if s > bestScore {
				break
			}
		}
		if s < bestScore {
			best, bestScore = q, s
		}
	}
	return best, bestScore
}

// QuantMatrix synthesizes a matrix from the standard baseline tables.
func QuantMatrix(q int, forChroma bool) Matrix {
	return Default.Matrix(q, forChroma)
}

// EstimateQuality estimates the quality of m against the standard baseline tables.
func EstimateQuality(m Matrix, forChroma bool) int {
	return Default.Estimate(m, forChroma)
}
