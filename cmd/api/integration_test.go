package main

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/harliandi/go-jpeginspect/internal/analyzer"
	"github.com/harliandi/go-jpeginspect/internal/config"
	"github.com/harliandi/go-jpeginspect/internal/middleware"
)

func testConfig() *config.Config {
	return &config.Config{
		MaxUploadMB:      10,
		TargetSizeKB:     500,
		MaxConcurrent:    50,
		RateLimitPerSec:  100,
		RateLimitBurst:   100,
		WorkerCount:      2,
		MaxAnalyzePixels: 1 << 20,
		EnableGzip:       true,
	}
}

func newTestServer(t testing.TB, cfg *config.Config) *httptest.Server {
	t.Helper()
	pool := analyzer.NewWorkerPool(analyzer.New(cfg.MaxAnalyzePixels), cfg.WorkerCount)
	pool.Start()
	server := httptest.NewServer(newHandler(cfg, pool))
	t.Cleanup(func() {
		server.Close()
		pool.Stop()
	})
	return server
}

func testJPEG(t *testing.T, w, h, q int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: uint8(x ^ y), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}
	return buf.Bytes()
}

func postFile(t *testing.T, url string, data []byte) *http.Response {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, _ := writer.CreateFormFile("file", "photo.jpg")
	part.Write(data)
	writer.Close()

	resp, err := http.Post(url, writer.FormDataContentType(), body)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

// TestIntegration_EndToEnd exercises every route through the full middleware stack
func TestIntegration_EndToEnd(t *testing.T) {
	server := newTestServer(t, testConfig())
	photo := testJPEG(t, 160, 120, 85)

	t.Run("inspect", func(t *testing.T) {
		resp := postFile(t, server.URL+"/inspect", photo)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d", resp.StatusCode)
		}
		var rep analyzer.InspectReport
		if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
			t.Fatal(err)
		}
		if rep.Width != 160 || rep.Height != 120 || rep.Luma == nil || rep.Luma.Quality != 85 {
			t.Errorf("unexpected report: %+v", rep)
		}
	})

	t.Run("riskiness", func(t *testing.T) {
		resp := postFile(t, server.URL+"/riskiness", photo)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d", resp.StatusCode)
		}
		var rep analyzer.RiskReport
		if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
			t.Fatal(err)
		}
		if rep.Score < 0 || rep.Score > 100 || rep.ModeName == "" {
			t.Errorf("unexpected report: %+v", rep)
		}
	})

	t.Run("plan", func(t *testing.T) {
		resp := postFile(t, server.URL+"/plan?max_size=8", photo)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d", resp.StatusCode)
		}
	})

	t.Run("matrix", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/matrix?quality=75&chroma=true")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d", resp.StatusCode)
		}
	})

	t.Run("estimate", func(t *testing.T) {
		m := make([]int, 64)
		for i := range m {
			m[i] = 1
		}
		body, _ := json.Marshal(map[string]any{"matrix": m})
		resp, err := http.Post(server.URL+"/estimate", "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var got struct{ Quality int }
		json.NewDecoder(resp.Body).Decode(&got)
		if resp.StatusCode != http.StatusOK || got.Quality != 100 {
			t.Errorf("status %d quality %d, want 200 and 100", resp.StatusCode, got.Quality)
		}
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/metrics")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		// The transport decompresses transparently when it asked for gzip.
		body, _ := io.ReadAll(resp.Body)
		if !strings.Contains(string(body), "jpeginspect_analyses_total") {
			t.Error("analysis metrics not exported")
		}
	})
}

// TestIntegration_MiddlewareHeaders checks the headers the chain adds
func TestIntegration_MiddlewareHeaders(t *testing.T) {
	server := newTestServer(t, testConfig())

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("Health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Health endpoint returned status %d", resp.StatusCode)
	}
	for _, header := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy", middleware.RequestIDHeader} {
		if resp.Header.Get(header) == "" {
			t.Errorf("header %s not set", header)
		}
	}
}

// TestIntegration_Gzip checks JSON reports are compressed on request
func TestIntegration_Gzip(t *testing.T) {
	server := newTestServer(t, testConfig())

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, _ := writer.CreateFormFile("file", "photo.jpg")
	// Low quality tables print as three-digit entries, well above the
	// compression threshold.
	part.Write(testJPEG(t, 64, 64, 10))
	writer.Close()

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/inspect", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("Content-Encoding") != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", resp.Header.Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	var rep analyzer.InspectReport
	if err := json.NewDecoder(zr).Decode(&rep); err != nil {
		t.Fatalf("decoding gzip body: %v", err)
	}
	if rep.Luma == nil || rep.Luma.Quality != 10 {
		t.Errorf("unexpected report: %+v", rep)
	}
}

// TestIntegration_RateLimiting tests rate limiting through the full stack
func TestIntegration_RateLimiting(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerSec, cfg.RateLimitBurst = 1, 1
	server := newTestServer(t, cfg)

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("First request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("First request should pass, got %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("Second request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("Expected rate limit status %d, got %d", http.StatusTooManyRequests, resp.StatusCode)
	}
}

// TestIntegration_ConcurrentUploads sends parallel uploads through a small pool
func TestIntegration_ConcurrentUploads(t *testing.T) {
	server := newTestServer(t, testConfig())
	photo := testJPEG(t, 64, 64, 70)

	var wg sync.WaitGroup
	var mu sync.Mutex
	codes := map[int]int{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body := &bytes.Buffer{}
			writer := multipart.NewWriter(body)
			part, _ := writer.CreateFormFile("file", "photo.jpg")
			part.Write(photo)
			writer.Close()

			resp, err := http.Post(server.URL+"/riskiness", writer.FormDataContentType(), body)
			if err != nil {
				t.Errorf("POST: %v", err)
				return
			}
			resp.Body.Close()
			mu.Lock()
			codes[resp.StatusCode]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if codes[http.StatusOK] == 0 {
		t.Errorf("no upload succeeded: %v", codes)
	}
	for code := range codes {
		if code != http.StatusOK && code != http.StatusServiceUnavailable {
			t.Errorf("unexpected status %d", code)
		}
	}
}

// BenchmarkHTTPInspect benchmarks a full inspect request using a test server
func BenchmarkHTTPInspect(b *testing.B) {
	server := newTestServer(b, testConfig())

	img := image.NewGray(image.Rect(0, 0, 256, 256))
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, nil)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, _ := writer.CreateFormFile("file", "photo.jpg")
	part.Write(buf.Bytes())
	writer.Close()
	payload := body.Bytes()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		resp, err := http.Post(server.URL+"/inspect", writer.FormDataContentType(), bytes.NewReader(payload))
		if err != nil {
			b.Fatal(err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}
