package quality

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"

	jpegscan "github.com/harliandi/go-jpeginspect/pkg/jpeg"
)

const (
	minQuality    = 10
	maxQuality    = 100
	maxIterations = 7
	startQuality  = 85
)

// ErrNoTables is returned when an encoded stream carries no luma table.
var ErrNoTables = errors.New("quality: encoded stream has no quantization tables")

// SizePlan is the outcome of a size-constrained quality search.
type SizePlan struct {
	Quality int
	Bytes   int
	Luma    Matrix
	Chroma  Matrix
}

// FindOptimalQuality finds the JPEG quality whose encoded size is closest to
// targetSizeKB. It binary-searches [minQuality, maxQuality] and stops early
// once within 5% of the target.
func FindOptimalQuality(img image.Image, targetSizeKB int) (int, error) {
	p, err := PlanForSize(img, targetSizeKB)
	if err != nil {
		return startQuality, err
	}
	return p.Quality, nil
}

// PlanForSize runs the size search and reports the quantization matrices the
// chosen quality produces, read back from the encoded stream.
func PlanForSize(img image.Image, targetSizeKB int) (SizePlan, error) {
	targetBytes := targetSizeKB * 1024

	low, high := minQuality, maxQuality
	best := SizePlan{Quality: startQuality}
	bestDiff := -1
	var bestData []byte

	for i := 0; i < maxIterations; i++ {
		mid := (low + high) / 2
		data, err := encode(img, mid)
		if err != nil {
			return SizePlan{Quality: startQuality}, err
		}

		diff := abs(len(data) - targetBytes)
		if bestDiff == -1 || diff < bestDiff {
			bestDiff = diff
			best.Quality, best.Bytes = mid, len(data)
			bestData = data
		}

		if diff < targetBytes/20 {
			break
		}
		if len(data) > targetBytes {
			high = mid - 1
		} else {
			low = mid + 1
		}
		if low > high {
			break
		}
	}

	tables := jpegscan.FindQuantizer(bestData)
	if !tables.Luma.Valid() {
		return best, ErrNoTables
	}
	best.Luma = tables.Luma.Matrix()
	best.Chroma = tables.Chroma.Matrix()
	return best, nil
}

func encode(img image.Image, q int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
