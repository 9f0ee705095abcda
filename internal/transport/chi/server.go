package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/docuchat/docuchat/internal/domain"
	logpkg "github.com/docuchat/docuchat/internal/logger"
	healthuc "github.com/docuchat/docuchat/internal/usecase/health"
)

const (
	msgNotIndexed = "No PDF has been processed yet. Please upload a PDF first."
	msgCorrupted  = "Database was corrupted. Please upload your PDF again."
)

// Options tunes the HTTP contract.
type Options struct {
	// ErrorStatusCodes sends real 4xx/5xx codes. When false every error is a
	// 200 with an {"error": ...} body.
	ErrorStatusCodes bool
	// MaxUploadBytes caps the multipart body of /upload-pdf/. 0 = unlimited.
	MaxUploadBytes int64
}

// errorHandler maps a domain error to a status and client message. Returns ok=false if it does not apply.
type errorHandler func(err error) (status int, msg string, ok bool)

// Server serves the document chat HTTP API.
type Server struct {
	pipeline      Pipeline
	summary       Summarizer
	health        HealthChecker
	opts          Options
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(pipeline Pipeline, summary Summarizer, health HealthChecker, opts Options, logger *zap.Logger) *Server {
	s := &Server{
		pipeline: pipeline,
		summary:  summary,
		health:   health,
		opts:     opts,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		fileNotFoundHandler,
		sentinelHandler(domain.ErrNotIndexed, http.StatusConflict, msgNotIndexed),
		sentinelHandler(domain.ErrCorrupted, http.StatusConflict, msgCorrupted),
	}
	return s
}

// Register mounts the API routes on r.
func (s *Server) Register(r chi.Router) {
	r.Get("/", s.Root)
	r.Post("/upload-pdf/", s.UploadPDF)
	r.Post("/process-pdf/", s.ProcessPDF)
	r.Post("/ask/", s.Ask)
	r.Post("/extract-points/", s.ExtractPoints)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type uploadResponse struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
}

type filenameRequest struct {
	Filename string `json:"filename"`
}

type processResponse struct {
	Message   string `json:"message"`
	NumChunks int    `json:"num_chunks"`
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type pointsResponse struct {
	Points []string `json:"points"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Root handles GET /.
func (s *Server) Root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: "RAG backend is running!"})
}

// UploadPDF handles POST /upload-pdf/.
func (s *Server) UploadPDF(w http.ResponseWriter, r *http.Request) {
	if s.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	}

	file, hdr, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Invalid request body: file exceeds %d bytes", tooLarge.Limit))
			return
		}
		s.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	defer file.Close() //nolint:errcheck // multipart part

	name := uploadName(hdr.Filename)
	if name == "" {
		s.writeError(w, http.StatusBadRequest, "Invalid request body: file name is required")
		return
	}

	if err := s.pipeline.Ingest(r.Context(), name, file); err != nil {
		s.handleDomainError(w, r, err, "Upload failed: ")
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Message:  fmt.Sprintf("PDF '%s' uploaded successfully!", name),
		Filename: name,
	})
}

// ProcessPDF handles POST /process-pdf/.
func (s *Server) ProcessPDF(w http.ResponseWriter, r *http.Request) {
	var req filenameRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Filename == "" {
		s.writeError(w, http.StatusBadRequest, "Invalid request body: filename is required")
		return
	}

	n, err := s.pipeline.Index(r.Context(), req.Filename)
	if err != nil {
		s.handleDomainError(w, r, err, "Processing failed: ")
		return
	}

	writeJSON(w, http.StatusOK, processResponse{
		Message:   fmt.Sprintf("PDF '%s' processed and stored!", req.Filename),
		NumChunks: n,
	})
}

// Ask handles POST /ask/.
func (s *Server) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.writeError(w, http.StatusBadRequest, "Invalid request body: question is required")
		return
	}

	answer, err := s.pipeline.Ask(r.Context(), req.Question)
	if err != nil {
		s.handleDomainError(w, r, err, "Failed to get answer: ")
		return
	}

	writeJSON(w, http.StatusOK, askResponse{Question: req.Question, Answer: answer})
}

// ExtractPoints handles POST /extract-points/.
func (s *Server) ExtractPoints(w http.ResponseWriter, r *http.Request) {
	var req filenameRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Filename == "" {
		s.writeError(w, http.StatusBadRequest, "Invalid request body: filename is required")
		return
	}

	points, err := s.summary.ExtractPoints(r.Context(), req.Filename)
	if err != nil {
		s.handleDomainError(w, r, err, "Failed to extract points: ")
		return
	}

	writeJSON(w, http.StatusOK, pointsResponse{Points: points})
}

// HealthCheck handles GET /health. It always uses real status codes.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{Status: string(report.Status), Checks: checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	if !s.opts.ErrorStatusCodes {
		status = http.StatusOK
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error, prefix string) {
	log := logpkg.FromContext(r.Context())
	log.Warn("domain error", zap.Error(err))

	for _, h := range s.errorHandlers {
		if status, msg, ok := h(err); ok {
			s.writeError(w, status, msg)
			return
		}
	}

	status := fallbackStatus(err)
	if status == http.StatusInternalServerError {
		log.Error("internal error", zap.Error(err))
	}
	if errors.Is(err, domain.ErrValidation) {
		prefix = "Invalid request body: "
	}
	s.writeError(w, status, prefix+err.Error())
}

func fallbackStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrExtraction):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrCompletionProvider), errors.Is(err, domain.ErrEmbeddingProviderError):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// sentinelHandler returns an errorHandler that matches a single sentinel error with a fixed message.
func sentinelHandler(sentinel error, status int, msg string) errorHandler {
	return func(err error) (int, string, bool) {
		if !errors.Is(err, sentinel) {
			return 0, "", false
		}
		return status, msg, true
	}
}

// fileNotFoundHandler names the missing file in the message.
func fileNotFoundHandler(err error) (int, string, bool) {
	var nf *domain.FileNotFoundError
	if errors.As(err, &nf) {
		return http.StatusNotFound, fmt.Sprintf("File %s not found.", nf.Filename), true
	}
	if errors.Is(err, domain.ErrNotFound) {
		return http.StatusNotFound, "File not found.", true
	}
	return 0, "", false
}

// uploadName reduces a client-supplied file name to its last path element.
func uploadName(name string) string {
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
