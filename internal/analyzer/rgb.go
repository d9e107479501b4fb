package analyzer

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// PackRGB renders img into a packed 8-bit RGB buffer with a stride of 3*w.
// Images larger than maxPixels are downscaled with bilinear filtering,
// keeping the aspect ratio. maxPixels <= 0 disables downscaling.
func PackRGB(img image.Image, maxPixels int) (rgb []byte, w, h int) {
	b := img.Bounds()
	w, h = b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, 0, 0
	}

	var rgba *image.RGBA
	if maxPixels > 0 && w*h > maxPixels {
		f := math.Sqrt(float64(maxPixels) / float64(w*h))
		w = max(1, int(float64(w)*f))
		h = max(1, int(float64(h)*f))
		rgba = image.NewRGBA(image.Rect(0, 0, w, h))
		draw.ApproxBiLinear.Scale(rgba, rgba.Bounds(), img, b, draw.Src, nil)
	} else if src, ok := img.(*image.RGBA); ok && src.Rect.Min == (image.Point{}) {
		rgba = src
	} else {
		rgba = image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}

	rgb = make([]byte, 3*w*h)
	for y := 0; y < h; y++ {
		src := rgba.Pix[y*rgba.Stride : y*rgba.Stride+4*w]
		dst := rgb[3*w*y : 3*w*(y+1)]
		for x := 0; x < w; x++ {
			dst[3*x] = src[4*x]
			dst[3*x+1] = src[4*x+1]
			dst[3*x+2] = src[4*x+2]
		}
	}
	return rgb, w, h
}
