package analyzer

import (
	"bytes"
	"errors"
	"image"
	"log"
)

var (
	// ErrFileTooLarge is returned when the file exceeds the size limit
	ErrFileTooLarge = errors.New("file size exceeds limit")
	// ErrInvalidImageDimensions is returned when image dimensions are invalid
	ErrInvalidImageDimensions = errors.New("invalid image dimensions")
	// ErrImageTooLarge is returned when image dimensions exceed limits
	ErrImageTooLarge = errors.New("image dimensions exceed maximum allowed")
	// ErrUnsupportedFormat is returned when the upload is not a known image format
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

// Validation limits
const (
	MaxFileSize    = 20 * 1024 * 1024 // 20MB max file size
	MaxImageWidth  = 20000            // 20K pixels max width
	MaxImageHeight = 20000            // 20K pixels max height
	MaxImagePixels = 250_000_000      // 250 megapixels max total pixels
	minFileSize    = 12
)

// Format is the container format of an upload, detected from magic bytes.
type Format string

const (
	FormatUnknown Format = ""
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatGIF     Format = "gif"
	FormatWebP    Format = "webp"
	FormatHEIF    Format = "heif"
)

var (
	jpegMagic = []byte{0xff, 0xd8, 0xff}
	pngMagic  = []byte("\x89PNG\r\n\x1a\n")
	gifMagic  = []byte("GIF8")
)

// heifBrands are the ISOBMFF major brands accepted as HEIF.
var heifBrands = []string{"heic", "heix", "heim", "heis", "hevc", "mif1", "msf1"}

// DetectFormat identifies the image format from the first bytes of data.
func DetectFormat(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, jpegMagic):
		return FormatJPEG
	case bytes.HasPrefix(data, pngMagic):
		return FormatPNG
	case bytes.HasPrefix(data, gifMagic):
		return FormatGIF
	case IsWebPMagic(data):
		return FormatWebP
	case IsHEIFMagic(data):
		return FormatHEIF
	}
	return FormatUnknown
}

// IsHEIFMagic checks for an ISOBMFF "ftyp" box with a HEIF brand.
func IsHEIFMagic(data []byte) bool {
	if len(data) < minFileSize || string(data[4:8]) != "ftyp" {
		return false
	}
	brand := string(data[8:12])
	for _, b := range heifBrands {
		if brand == b {
			return true
		}
	}
	return false
}

// IsWebPMagic checks for a RIFF container holding WebP data.
func IsWebPMagic(data []byte) bool {
	return len(data) >= minFileSize && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP"
}

// ValidateFile checks the file size and basic structure before processing
func ValidateFile(data []byte) error {
	if len(data) > MaxFileSize {
		log.Printf("File too large: %d bytes (max: %d)", len(data), MaxFileSize)
		return ErrFileTooLarge
	}
	if len(data) < minFileSize {
		return ErrInvalidImage
	}
	return nil
}

// ValidateDimensions checks declared image dimensions are within acceptable limits
func ValidateDimensions(width, height int) error {
	if width <= 0 || height <= 0 {
		log.Printf("Invalid dimensions: %dx%d", width, height)
		return ErrInvalidImageDimensions
	}
	if width > MaxImageWidth || height > MaxImageHeight {
		log.Printf("Dimensions too large: %dx%d (max: %dx%d)", width, height, MaxImageWidth, MaxImageHeight)
		return ErrImageTooLarge
	}
	// Prevent decompression bomb attacks
	if total := int64(width) * int64(height); total > MaxImagePixels {
		log.Printf("Too many pixels: %d (max: %d)", total, MaxImagePixels)
		return ErrImageTooLarge
	}
	return nil
}

// ValidateImage checks decoded image dimensions are within acceptable limits
func ValidateImage(img image.Image) error {
	if img == nil {
		return ErrInvalidImage
	}
	b := img.Bounds()
	return ValidateDimensions(b.Dx(), b.Dy())
}
