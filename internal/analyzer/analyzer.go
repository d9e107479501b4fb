package analyzer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/adrium/goheif"
	webp "github.com/chai2010/webp"

	"github.com/harliandi/go-jpeginspect/pkg/jpeg"
	"github.com/harliandi/go-jpeginspect/pkg/metrics"
	"github.com/harliandi/go-jpeginspect/pkg/quality"
	"github.com/harliandi/go-jpeginspect/pkg/risk"
)

// ErrInvalidImage is returned when an upload cannot be parsed or decoded.
var ErrInvalidImage = errors.New("invalid image file")

// DefaultMaxAnalyzePixels bounds the image area fed to the riskiness scorer.
const DefaultMaxAnalyzePixels = 4_000_000

// Analyzer inspects JPEG streams and scores decoded images.
type Analyzer struct {
	scorer    *risk.Scorer
	codec     *quality.Codec
	maxPixels int
}

// New creates an Analyzer with the default scoring tables and baseline
// matrices. Images above maxPixels are downscaled before scoring; zero
// disables downscaling.
func New(maxPixels int) *Analyzer {
	return NewWith(risk.Default(), quality.Default, maxPixels)
}

// NewWith creates an Analyzer with explicit collaborators.
func NewWith(scorer *risk.Scorer, codec *quality.Codec, maxPixels int) *Analyzer {
	return &Analyzer{scorer: scorer, codec: codec, maxPixels: maxPixels}
}

// ComponentReport describes one frame component.
type ComponentReport struct {
	ID         uint8 `json:"id"`
	H          int   `json:"h"`
	V          int   `json:"v"`
	QuantTable uint8 `json:"quant_table"`
}

// TableReport is the quality estimate for one quantization table.
type TableReport struct {
	Quality int `json:"quality"`
	// Residual is the squared distance to the matrix synthesized at Quality;
	// zero means a standard libjpeg-style table.
	Residual int            `json:"residual"`
	Matrix   quality.Matrix `json:"matrix"`
}

// InspectReport is the header-level description of a JPEG stream.
type InspectReport struct {
	Width       int               `json:"width"`
	Height      int               `json:"height"`
	Precision   int               `json:"precision"`
	Subsampling string            `json:"subsampling"`
	YUV420      bool              `json:"yuv420"`
	Components  []ComponentReport `json:"components"`
	Tables      int               `json:"tables"`
	Luma        *TableReport      `json:"luma,omitempty"`
	Chroma      *TableReport      `json:"chroma,omitempty"`
}

// RiskReport is the riskiness of a decoded image.
type RiskReport struct {
	Format     Format  `json:"format"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Analyzed   [2]int  `json:"analyzed"`
	Downscaled bool    `json:"downscaled"`
	Score      float64 `json:"score"`
	Mode       int     `json:"mode"`
	ModeName   string  `json:"mode_name"`
}

// PlanReport is an encoding recommendation for a decoded image.
type PlanReport struct {
	TargetKB int            `json:"target_kb"`
	Quality  int            `json:"quality"`
	Bytes    int            `json:"bytes"`
	Luma     quality.Matrix `json:"luma"`
	Chroma   quality.Matrix `json:"chroma"`
	Risk     RiskReport     `json:"risk"`
}

// Inspect reads the frame header and quantization tables of a JPEG stream.
// The returned report holds copies; data may be reused once it returns.
func (a *Analyzer) Inspect(data []byte) (InspectReport, error) {
	start := time.Now()
	rep, err := a.inspect(data)
	metrics.RecordAnalysis("inspect", statusOf(err), time.Since(start).Seconds(), len(data))
	return rep, err
}

func (a *Analyzer) inspect(data []byte) (InspectReport, error) {
	if err := ValidateFile(data); err != nil {
		return InspectReport{}, err
	}
	if DetectFormat(data) != FormatJPEG {
		return InspectReport{}, ErrUnsupportedFormat
	}
	frame, err := jpeg.ParseFrame(data)
	if err != nil {
		return InspectReport{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	rep := InspectReport{
		Width:       frame.Width,
		Height:      frame.Height,
		Precision:   frame.Precision,
		Subsampling: frame.Subsampling(),
		YUV420:      frame.YUV420,
		Components:  make([]ComponentReport, len(frame.Components)),
	}
	for i, c := range frame.Components {
		rep.Components[i] = ComponentReport{ID: c.ID, H: c.H, V: c.V, QuantTable: c.QuantTable}
	}

	tables := jpeg.FindQuantizer(data)
	rep.Tables = tables.Count
	if tables.Luma.Valid() {
		rep.Luma = a.tableReport(tables.Luma, false)
	}
	if tables.Chroma.Valid() {
		rep.Chroma = a.tableReport(tables.Chroma, true)
	}
	return rep, nil
}

func (a *Analyzer) tableReport(v jpeg.TableView, forChroma bool) *TableReport {
	m := quality.Matrix(v.Matrix())
	q, residual := a.codec.EstimateWithScore(m, forChroma)
	table := "luma"
	if forChroma {
		table = "chroma"
	}
	metrics.RecordEstimatedQuality(table, q)
	return &TableReport{Quality: q, Residual: residual, Matrix: m}
}

// Riskiness decodes an image and scores it for chroma subsampling.
func (a *Analyzer) Riskiness(data []byte) (RiskReport, error) {
	start := time.Now()
	img, format, err := a.Decode(data)
	var rep RiskReport
	if err == nil {
		rep, err = a.riskiness(img, format)
	}
	metrics.RecordAnalysis("riskiness", statusOf(err), time.Since(start).Seconds(), len(data))
	return rep, err
}

func (a *Analyzer) riskiness(img image.Image, format Format) (RiskReport, error) {
	b := img.Bounds()
	rgb, w, h := PackRGB(img, a.maxPixels)
	res, err := a.scorer.Image(rgb, w, h, 3*w)
	if err != nil {
		return RiskReport{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	metrics.RecordRecommendation(res.Mode.String())
	return RiskReport{
		Format:     format,
		Width:      b.Dx(),
		Height:     b.Dy(),
		Analyzed:   [2]int{w, h},
		Downscaled: w != b.Dx() || h != b.Dy(),
		Score:      res.Score,
		Mode:       int(res.Mode),
		ModeName:   res.Mode.String(),
	}, nil
}

// Plan decodes an image, searches the encode quality closest to targetKB and
// scores its chroma riskiness.
func (a *Analyzer) Plan(data []byte, targetKB int) (PlanReport, error) {
	start := time.Now()
	rep, err := a.plan(data, targetKB)
	metrics.RecordAnalysis("plan", statusOf(err), time.Since(start).Seconds(), len(data))
	return rep, err
}

func (a *Analyzer) plan(data []byte, targetKB int) (PlanReport, error) {
	img, format, err := a.Decode(data)
	if err != nil {
		return PlanReport{}, err
	}
	risky, err := a.riskiness(img, format)
	if err != nil {
		return PlanReport{}, err
	}
	sp, err := quality.PlanForSize(img, targetKB)
	if err != nil {
		return PlanReport{}, err
	}
	return PlanReport{
		TargetKB: targetKB,
		Quality:  sp.Quality,
		Bytes:    sp.Bytes,
		Luma:     sp.Luma,
		Chroma:   sp.Chroma,
		Risk:     risky,
	}, nil
}

// Decode validates and decodes an upload of any supported format.
// Dimensions are checked from the image header before any pixel data is
// decoded.
func (a *Analyzer) Decode(data []byte) (image.Image, Format, error) {
	if err := ValidateFile(data); err != nil {
		return nil, FormatUnknown, err
	}
	format := DetectFormat(data)

	var (
		img image.Image
		err error
	)
	switch format {
	case FormatHEIF:
		img, err = goheif.Decode(bytes.NewReader(data))
	case FormatWebP:
		var cfg image.Config
		if cfg, err = webp.DecodeConfig(bytes.NewReader(data)); err == nil {
			if err = ValidateDimensions(cfg.Width, cfg.Height); err != nil {
				return nil, format, err
			}
			img, err = webp.Decode(bytes.NewReader(data))
		}
	case FormatJPEG:
		w, h, derr := jpeg.Dimensions(data)
		if derr != nil {
			// Progressive frames and streams the scanner rejects still
			// get their size checked by the stdlib header reader.
			var cfg image.Config
			if cfg, _, err = image.DecodeConfig(bytes.NewReader(data)); err != nil {
				break
			}
			w, h = cfg.Width, cfg.Height
		}
		if err = ValidateDimensions(w, h); err != nil {
			return nil, format, err
		}
		img, _, err = image.Decode(bytes.NewReader(data))
	case FormatPNG, FormatGIF:
		var cfg image.Config
		if cfg, _, err = image.DecodeConfig(bytes.NewReader(data)); err == nil {
			if err = ValidateDimensions(cfg.Width, cfg.Height); err != nil {
				return nil, format, err
			}
			img, _, err = image.Decode(bytes.NewReader(data))
		}
	default:
		return nil, format, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, format, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if err := ValidateImage(img); err != nil {
		return nil, format, err
	}
	return img, format, nil
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
