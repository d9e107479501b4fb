package risk

const blockSize = 8

// BlockScores holds one sub-score per pixel of an 8x8 block, row-major.
type BlockScores [blockSize * blockSize]int16

// blockIndex folds a centered Y/U/V sample triple into a color index.
func (s *Scorer) blockIndex(y, u, v int16) int {
	r := s.levels
	c := clampSample(y) + clampSample(u)*r + clampSample(v)*r*r
	return c * (r - 1) / 255
}

func clampSample(v int16) int {
	c := int(v) + 128
	if c < 0 {
		return 0
	}
	if c > 255 {
		return 255
	}
	return c
}

// DCTBlock scores an 8x8 block given as centered Y, U and V planes of 64
// samples each. Pixels on the right and bottom edges use their left and top
// neighbors instead. It returns the block score in [0, 100] and the
// per-pixel sub-scores, with noise-level scores set to zero.
func (s *Scorer) DCTBlock(yuv *[3 * 64]int16) (float64, BlockScores) {
	var (
		idx    [blockSize * blockSize]int
		scores BlockScores
	)
	for k := range idx {
		idx[k] = s.blockIndex(yuv[k], yuv[k+64], yuv[k+128])
	}

	total, count := 0., 0.
	for j := 0; j < blockSize; j++ {
		for i := 0; i < blockSize; i++ {
			k := i + j*blockSize
			right, below := k+1, k+blockSize
			if i == blockSize-1 {
				right = k - 1
			}
			if j == blockSize-1 {
				below = k - blockSize
			}
			score := s.pixelScore(idx[k], idx[right], idx[below])
			if score <= noiseLevel {
				score = 0
			} else {
				total += float64(score)
				count++
			}
			scores[k] = int16(score)
		}
	}
	if count > 0 {
		total /= count
	}
	return rescale(total), scores
}

// Block converts the 8x8 packed RGB block at rgb, rows stride bytes apart,
// and scores it like DCTBlock.
func (s *Scorer) Block(rgb []byte, stride int) (float64, BlockScores, error) {
	if !fits(len(rgb), blockSize, blockSize, stride) {
		return 0, BlockScores{}, ErrInvalidImage
	}
	var yuv [3 * 64]int16
	s.yuvBlock(rgb, stride, &yuv)
	score, scores := s.DCTBlock(&yuv)
	return score, scores, nil
}
