package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/harliandi/go-jpeginspect/internal/analyzer"
	"github.com/harliandi/go-jpeginspect/internal/middleware"
	"github.com/harliandi/go-jpeginspect/pkg/quality"
)

const (
	maxMemory     = 8 << 20 // multipart parts above this spill to disk
	maxJSONBody   = 64 << 10
	submitRetries = 3
)

// Handler serves the inspection API
type Handler struct {
	pool         *analyzer.WorkerPool
	codec        *quality.Codec
	maxUploadMB  int
	targetSizeKB int
}

// New creates a Handler submitting uploads to pool. targetSizeKB is the
// default budget for /plan.
func New(pool *analyzer.WorkerPool, targetSizeKB, maxUploadMB int) *Handler {
	return &Handler{
		pool:         pool,
		codec:        quality.Default,
		maxUploadMB:  maxUploadMB,
		targetSizeKB: targetSizeKB,
	}
}

// Inspect handles POST /inspect
func (h *Handler) Inspect(w http.ResponseWriter, r *http.Request) {
	res, ok := h.run(w, r, analyzer.JobInspect, 0)
	if ok {
		writeJSON(w, http.StatusOK, res.Inspect)
	}
}

// Riskiness handles POST /riskiness
func (h *Handler) Riskiness(w http.ResponseWriter, r *http.Request) {
	res, ok := h.run(w, r, analyzer.JobRiskiness, 0)
	if ok {
		writeJSON(w, http.StatusOK, res.Risk)
	}
}

// Plan handles POST /plan?max_size=KB
func (h *Handler) Plan(w http.ResponseWriter, r *http.Request) {
	target := h.targetSizeKB
	if s := r.URL.Query().Get("max_size"); s != "" {
		kb, err := strconv.Atoi(s)
		if err != nil || kb <= 0 {
			writeError(w, http.StatusBadRequest, "max_size must be a positive integer (KB)")
			return
		}
		target = kb
	}
	res, ok := h.run(w, r, analyzer.JobPlan, target)
	if ok {
		writeJSON(w, http.StatusOK, res.Plan)
	}
}

// MatrixResponse is the body of GET /matrix
type MatrixResponse struct {
	Quality int            `json:"quality"`
	Chroma  bool           `json:"chroma"`
	Matrix  quality.Matrix `json:"matrix"`
}

// Matrix handles GET /matrix?quality=Q&chroma=bool
func (h *Handler) Matrix(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	query := r.URL.Query()
	q, err := strconv.Atoi(query.Get("quality"))
	if err != nil || q < 0 || q > 100 {
		writeError(w, http.StatusBadRequest, "quality must be an integer in [0,100]")
		return
	}
	chroma, err := parseBool(query.Get("chroma"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "chroma must be a boolean")
		return
	}
	writeJSON(w, http.StatusOK, MatrixResponse{
		Quality: q,
		Chroma:  chroma,
		Matrix:  h.codec.Matrix(q, chroma),
	})
}

// EstimateRequest is the body of POST /estimate
type EstimateRequest struct {
	Matrix []int `json:"matrix"`
	Chroma bool  `json:"chroma"`
}

// EstimateResponse is the reply of POST /estimate
type EstimateResponse struct {
	Quality  int `json:"quality"`
	Residual int `json:"residual"`
}

// Estimate handles POST /estimate
func (h *Handler) Estimate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req EstimateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if len(req.Matrix) != len(quality.Matrix{}) {
		writeError(w, http.StatusBadRequest, "matrix must have 64 entries")
		return
	}
	var m quality.Matrix
	for i, v := range req.Matrix {
		if v < 1 || v > 255 {
			writeError(w, http.StatusBadRequest, "matrix entries must be in [1,255]")
			return
		}
		m[i] = uint8(v)
	}
	q, residual := h.codec.EstimateWithScore(m, req.Chroma)
	writeJSON(w, http.StatusOK, EstimateResponse{Quality: q, Residual: residual})
}

// Health handles the /health endpoint for readiness/liveness probes
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	active, queued := h.pool.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"active": active,
		"queued": queued,
	})
}

// run reads the upload and submits it to the worker pool. On failure the
// error response has been written and ok is false.
func (h *Handler) run(w http.ResponseWriter, r *http.Request, kind analyzer.JobKind, targetKB int) (res analyzer.Result, ok bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return res, false
	}
	buf, status, msg := h.readUpload(w, r)
	if buf == nil {
		writeError(w, status, msg)
		return res, false
	}

	res, err := h.pool.SubmitWithRetry(r.Context(), analyzer.Job{Kind: kind, Buf: buf, TargetKB: targetKB}, submitRetries)
	if err != nil {
		status := statusFor(err)
		log.Printf("[%s] %s failed: %v", middleware.RequestIDFrom(r.Context()), kind, err)
		if status == http.StatusInternalServerError {
			writeError(w, status, "Analysis failed")
		} else {
			writeError(w, status, errorMessage(err))
		}
		return res, false
	}
	return res, true
}

// readUpload reads the multipart "file" field into a pooled buffer
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (*analyzer.PooledBuffer, int, string) {
	limit := int64(h.maxUploadMB) << 20
	if r.ContentLength > limit {
		return nil, http.StatusRequestEntityTooLarge, "Request too large"
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, http.ErrNotMultipart):
			return nil, http.StatusBadRequest, "Content-Type must be multipart/form-data"
		case errors.As(err, &tooLarge):
			return nil, http.StatusRequestEntityTooLarge, "Request too large"
		default:
			return nil, http.StatusBadRequest, "Malformed multipart body"
		}
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, http.StatusBadRequest, "No file provided"
	}
	defer file.Close()

	buf, err := analyzer.ReadPooled(file, int(header.Size))
	if err != nil {
		log.Printf("[%s] Reading upload: %v", middleware.RequestIDFrom(r.Context()), err)
		return nil, http.StatusBadRequest, "Could not read upload"
	}
	return buf, 0, ""
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, analyzer.ErrPoolBusy), errors.Is(err, analyzer.ErrPoolStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, analyzer.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, analyzer.ErrFileTooLarge), errors.Is(err, analyzer.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, analyzer.ErrInvalidImage), errors.Is(err, analyzer.ErrInvalidImageDimensions),
		errors.Is(err, quality.ErrNoTables):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// errorMessage reports the sentinel an error wraps, leaving out decoder
// detail
func errorMessage(err error) string {
	for _, sentinel := range []error{
		analyzer.ErrPoolBusy, analyzer.ErrPoolStopped, analyzer.ErrUnsupportedFormat,
		analyzer.ErrFileTooLarge, analyzer.ErrImageTooLarge, analyzer.ErrInvalidImageDimensions,
		analyzer.ErrInvalidImage, quality.ErrNoTables,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

func parseBool(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
