package risk

import (
	"errors"
	"math"
	"sync"
	"testing"
)

// packedImage returns a packed RGB buffer filled by fn.
func packedImage(w, h, stride int, fn func(x, y int) (r, g, b byte)) []byte {
	buf := make([]byte, stride*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b := fn(x, y)
			o := y*stride + 3*x
			buf[o], buf[o+1], buf[o+2] = r, g, b
		}
	}
	return buf
}

func flat(x, y int) (byte, byte, byte) { return 120, 60, 200 }

func checkerboard(x, y int) (byte, byte, byte) {
	if (x+y)%2 == 0 {
		return 0, 0, 0
	}
	return 255, 255, 255
}

// stripes alternates black and a color one level away on two channels.
func stripes(x, y int) (byte, byte, byte) {
	if x%2 == 0 {
		return 0, 0, 0
	}
	return 85, 85, 0
}

func TestImage(t *testing.T) {
	tests := []struct {
		name      string
		fill      func(x, y int) (byte, byte, byte)
		wantScore float64
		wantMode  Mode
	}{
		{"flat", flat, 0, YUV420},
		{"checkerboard", checkerboard, 100, YUV444},
		{"stripes", stripes, 56, SharpYUV420},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rgb := packedImage(64, 48, 64*3, tt.fill)
			got, err := ImageRiskiness(rgb, 64, 48, 64*3)
			if err != nil {
				t.Fatalf("ImageRiskiness() error = %v", err)
			}
			if got.Score != tt.wantScore {
				t.Errorf("Score = %v, want %v", got.Score, tt.wantScore)
			}
			if got.Mode != tt.wantMode {
				t.Errorf("Mode = %v, want %v", got.Mode, tt.wantMode)
			}
		})
	}
}

func TestImage_StridePadding(t *testing.T) {
	compact := packedImage(20, 20, 60, checkerboard)
	padded := packedImage(20, 20, 100, checkerboard)

	a, err := ImageRiskiness(compact, 20, 20, 60)
	if err != nil {
		t.Fatal(err)
	}
	b, err := ImageRiskiness(padded[:len(padded)-40], 20, 20, 100)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("padded stride changed the result: %+v vs %+v", a, b)
	}
}

func TestImage_SparseEdgesAreNoise(t *testing.T) {
	// A single odd pixel touches at most three scores out of 10000.
	rgb := packedImage(100, 100, 300, func(x, y int) (byte, byte, byte) {
		if x == 50 && y == 50 {
			return 255, 255, 255
		}
		return 0, 0, 0
	})
	got, err := ImageRiskiness(rgb, 100, 100, 300)
	if err != nil {
		t.Fatal(err)
	}
	if got.Score != 0 || got.Mode != YUV420 {
		t.Errorf("ImageRiskiness() = %+v, want zero score", got)
	}
}

func TestImage_TinyImages(t *testing.T) {
	for _, size := range [][2]int{{1, 1}, {1, 10}, {10, 1}} {
		w, h := size[0], size[1]
		rgb := packedImage(w, h, 3*w, checkerboard)
		got, err := ImageRiskiness(rgb, w, h, 3*w)
		if err != nil {
			t.Fatalf("%dx%d: error = %v", w, h, err)
		}
		if got.Score != 0 {
			t.Errorf("%dx%d: Score = %v, want 0", w, h, got.Score)
		}
	}
}

func TestImage_InvalidGeometry(t *testing.T) {
	rgb := make([]byte, 30)
	tests := []struct {
		name                  string
		buf                   []byte
		width, height, stride int
	}{
		{"zero width", rgb, 0, 1, 30},
		{"negative height", rgb, 10, -1, 30},
		{"short stride", rgb, 10, 1, 29},
		{"short buffer", rgb, 10, 2, 30},
		{"nil buffer", nil, 1, 1, 3},
		{"huge stride", make([]byte, 64), 2, 3, math.MaxInt/2 + 1},
		{"huge width", rgb, math.MaxInt/3 + 1, 1, math.MaxInt},
		{"huge height", rgb, 1, math.MaxInt, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ImageRiskiness(tt.buf, tt.width, tt.height, tt.stride)
			if !errors.Is(err, ErrInvalidImage) {
				t.Errorf("error = %v, want ErrInvalidImage", err)
			}
		})
	}
}

func TestRecommend(t *testing.T) {
	tests := []struct {
		score float64
		want  Mode
	}{
		{0, YUV420},
		{39.9, YUV420},
		{40, SharpYUV420},
		{69.9, SharpYUV420},
		{70, YUV444},
		{100, YUV444},
	}
	for _, tt := range tests {
		if got := Recommend(tt.score); got != tt.want {
			t.Errorf("Recommend(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
	if YUV444.String() != "yuv444" || Mode(7).String() != "Mode(7)" {
		t.Error("unexpected Mode names")
	}
}

func TestNewScorer_Validation(t *testing.T) {
	good := DefaultTables()

	short := good
	short.Sharpness = good.Sharpness[:10]
	noIndex := good
	noIndex.IndexRow = nil
	oneLevel := good
	oneLevel.Levels = 1

	for name, tables := range map[string]Tables{"short table": short, "no indexer": noIndex, "one level": oneLevel} {
		if _, err := NewScorer(tables); !errors.Is(err, ErrInvalidTables) {
			t.Errorf("%s: error = %v, want ErrInvalidTables", name, err)
		}
	}
	if _, err := NewScorer(good); err != nil {
		t.Errorf("default tables rejected: %v", err)
	}
}

func TestScorer_InjectedTables(t *testing.T) {
	// Two levels, every pair of distinct colors scores 2: each differing
	// neighbor pair adds 2, so a checkerboard pixel scores 4, which is noise.
	table := make([]uint8, 64)
	for a := 0; a < 8; a++ {
		for b := 0; b < 8; b++ {
			if a != b {
				table[a+8*b] = 2
			}
		}
	}
	s, err := NewScorer(Tables{
		Levels:    2,
		Sharpness: table,
		IndexRow:  IndexRowFunc(2),
		YUVBlock:  RGBToYUVBlock,
	})
	if err != nil {
		t.Fatal(err)
	}
	rgb := packedImage(16, 16, 48, checkerboard)
	got, err := s.Image(rgb, 16, 16, 48)
	if err != nil {
		t.Fatal(err)
	}
	if got.Score != 0 {
		t.Errorf("Score = %v, want 0 with a weak table", got.Score)
	}
}

func TestBlock(t *testing.T) {
	score, scores, err := BlockRiskiness(packedImage(8, 8, 24, flat), 24)
	if err != nil {
		t.Fatal(err)
	}
	if score != 0 || scores != (BlockScores{}) {
		t.Errorf("flat block: score %v, scores %v", score, scores)
	}

	score, scores, err = BlockRiskiness(packedImage(8, 8, 24, checkerboard), 24)
	if err != nil {
		t.Fatal(err)
	}
	if score != 100 {
		t.Errorf("checkerboard block score = %v, want 100", score)
	}
	for k, v := range scores {
		if v <= noiseLevel || v != scores[0] {
			t.Fatalf("checkerboard sub-score %d = %d, want %d everywhere", k, v, scores[0])
		}
	}

	if _, _, err := BlockRiskiness(make([]byte, 100), 24); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("short block error = %v, want ErrInvalidImage", err)
	}
	if _, _, err := BlockRiskiness(make([]byte, 500), 20); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("short stride error = %v, want ErrInvalidImage", err)
	}
	if _, _, err := BlockRiskiness(make([]byte, 256), math.MaxInt/7+1); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("huge stride error = %v, want ErrInvalidImage", err)
	}
}

func TestDCTBlock_EdgeNeighbors(t *testing.T) {
	var yuv [3 * 64]int16
	yuv[63] = 127 // bottom-right luma only

	_, scores := Default().DCTBlock(&yuv)
	for k, v := range scores {
		switch k {
		case 55, 62, 63:
			if v == 0 {
				t.Errorf("scores[%d] = 0, want an edge score", k)
			}
		default:
			if v != 0 {
				t.Errorf("scores[%d] = %d, want 0", k, v)
			}
		}
	}
}

func TestDCTBlock_OutOfRangeSamples(t *testing.T) {
	var yuv [3 * 64]int16
	for i := range yuv {
		if i%2 == 0 {
			yuv[i] = 32767
		} else {
			yuv[i] = -32768
		}
	}
	score, _ := Default().DCTBlock(&yuv)
	if score < 0 || score > 100 {
		t.Errorf("score %v out of range", score)
	}
}

func TestScorer_Concurrent(t *testing.T) {
	rgb := packedImage(64, 64, 192, checkerboard)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := ImageRiskiness(rgb, 64, 64, 192)
			if err != nil || got.Mode != YUV444 {
				t.Errorf("ImageRiskiness() = %+v, %v", got, err)
			}
		}()
	}
	wg.Wait()
}

func BenchmarkImageRiskiness(b *testing.B) {
	rgb := packedImage(640, 480, 1920, stripes)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ImageRiskiness(rgb, 640, 480, 1920)
	}
}
