// Package chi exposes the indexing session over HTTP: archive upload and
// batch indexing, similarity search by image, and lookup by indexed URI.
package chi

import (
	"archive/zip"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/framefinder/visim/internal/domain"
	logpkg "github.com/framefinder/visim/internal/logger"
	batchuc "github.com/framefinder/visim/internal/usecase/batch"
	healthuc "github.com/framefinder/visim/internal/usecase/health"
	"github.com/framefinder/visim/internal/usecase/query"
	"github.com/framefinder/visim/internal/usecase/session"
)

const manifestName = "manifest.json"

type errorCode string

const (
	codeBadRequest    errorCode = "bad_request"
	codeValidation    errorCode = "validation_failed"
	codePhotoNotFound errorCode = "photo_not_found"
	codeIndexNotReady errorCode = "index_not_ready"
	codeDimMismatch   errorCode = "dimension_mismatch"
	codePreprocess    errorCode = "preprocess_failed"
	codeInference     errorCode = "inference_failed"
	codeSessionClosed errorCode = "session_closed"
	codePayloadTooBig errorCode = "payload_too_large"
	codeInternalError errorCode = "internal_error"
)

type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Options carries the request-handling limits the server enforces.
type Options struct {
	Concurrency    int
	DefaultK       int
	MaxK           int
	MaxUploadBytes int64
}

// Server wires the indexing session and the extractor behind the HTTP API.
type Server struct {
	session       *session.Session
	extractor     domain.Extractor
	health        *healthuc.Service
	opts          Options
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	sess *session.Session,
	extractor domain.Extractor,
	health *healthuc.Service,
	opts Options,
	logger *zap.Logger,
) *Server {
	s := &Server{
		session:   sess,
		extractor: extractor,
		health:    health,
		opts:      opts,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrPhotoNotFound, http.StatusNotFound, codePhotoNotFound),
		sentinelHandler(domain.ErrIndexNotReady, http.StatusConflict, codeIndexNotReady),
		sentinelHandler(domain.ErrDimensionMismatch, http.StatusBadRequest, codeDimMismatch),
		sentinelHandler(domain.ErrPreprocess, http.StatusBadRequest, codePreprocess),
		sentinelHandler(domain.ErrConfiguration, http.StatusBadRequest, codeValidation),
		sentinelHandler(domain.ErrInference, http.StatusBadGateway, codeInference),
		sentinelHandler(domain.ErrSessionClosed, http.StatusServiceUnavailable, codeSessionClosed),
	}
	return s
}

// Routes registers all handlers on the router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/", s.Root)
	r.Get("/healthz", s.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/images", s.UploadImages)
	r.Post("/search", s.SearchByImage)
	r.Get("/query", s.QueryByURI)
}

// Root handles GET /.
func (s *Server) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "photo similarity service",
	})
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":         report.Status,
		"checks":         report.Checks,
		"index_ready":    report.IndexReady,
		"indexed_photos": report.IndexedPhotos,
	})
}

type uploadResponse struct {
	Message        string   `json:"message"`
	Token          string   `json:"token"`
	ImageCount     int      `json:"image_count"`
	ProcessedFiles []string `json:"processed_files"`
}

// UploadImages handles POST /images: a zip archive with photos plus a
// manifest.json mapping each file's path inside the archive to the photo's
// original URI. Every manifest entry is attempted; photos that fail
// extraction are logged and skipped. image_count and processed_files report
// the photos that were actually indexed, and an archive yielding zero valid
// images is a client error.
func (s *Server) UploadImages(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, codePayloadTooBig,
				fmt.Sprintf("archive exceeds %d bytes", tooBig.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, codeBadRequest, "missing file field: "+err.Error())
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".zip") {
		writeError(w, http.StatusBadRequest, codeValidation, "uploaded file must be a .zip archive")
		return
	}

	dir, err := os.MkdirTemp("", "visim-upload-*")
	if err != nil {
		s.internalError(w, fmt.Errorf("create temp dir: %w", err))
		return
	}
	defer os.RemoveAll(dir)

	manifest, err := unpackArchive(file, header.Size, dir)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if len(manifest) == 0 {
		writeError(w, http.StatusBadRequest, codeValidation, "manifest.json has no entries")
		return
	}

	// Batch items are identified by original URI; the manifest resolves each
	// URI back to its file in the archive. Filename order keeps sequence
	// indexes reproducible for a fixed archive.
	filenames := make([]string, 0, len(manifest))
	for name := range manifest {
		filenames = append(filenames, name)
	}
	sort.Strings(filenames)

	fileByURI := make(map[string]string, len(manifest))
	uris := make([]string, 0, len(manifest))
	for _, name := range filenames {
		uri := manifest[name]
		if _, dup := fileByURI[uri]; dup {
			continue
		}
		fileByURI[uri] = name
		uris = append(uris, uri)
	}

	loader := func(_ context.Context, uri string) ([]byte, error) {
		return os.ReadFile(filepath.Join(dir, fileByURI[uri]))
	}

	runner, err := batchuc.New(s.extractor, loader, s.opts.Concurrency, s.logger)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	batchID := uuid.NewString()
	log := logpkg.FromContext(r.Context()).With(zap.String("batch_id", batchID))
	log.Info("indexing archive",
		zap.String("archive", header.Filename),
		zap.Int("entries", len(uris)),
	)

	results, err := runner.Run(r.Context(), uris, func(fraction float64) {
		log.Debug("batch progress", zap.Float64("fraction", fraction))
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	inserted, err := s.session.InsertResults(results)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if len(inserted) == 0 {
		log.Warn("archive yielded no valid images", zap.Int("attempted", len(uris)))
		writeError(w, http.StatusBadRequest, codeValidation, "no valid images found in the archive")
		return
	}
	log.Info("archive indexed",
		zap.Int("processed", len(inserted)),
		zap.Int("failed", len(results)-len(inserted)),
	)

	writeJSON(w, http.StatusOK, uploadResponse{
		Message:        "images indexed",
		Token:          newToken(),
		ImageCount:     len(inserted),
		ProcessedFiles: inserted,
	})
}

type searchResponse struct {
	SimilarImages []string  `json:"similar_images"`
	Distances     []float64 `json:"distances"`
}

// SearchByImage handles POST /search: a photo is uploaded, embedded with the
// same extractor used at indexing time, and matched against the session.
func (s *Server) SearchByImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	k, err := s.parseK(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "missing file field: "+err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "read upload: "+err.Error())
		return
	}

	if !s.session.Ready() {
		s.handleDomainError(w, r, fmt.Errorf("no photos indexed yet: %w", domain.ErrIndexNotReady))
		return
	}

	vector, err := s.extractor.ExtractOne(r.Context(), data)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	matches, err := s.session.Query(vector, k)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, matchesToResponse(matches))
}

// QueryByURI handles GET /query?uri=...&k=...: similarity lookup for a photo
// that is already indexed, excluding the photo itself from the results.
func (s *Server) QueryByURI(w http.ResponseWriter, r *http.Request) {
	uri := r.URL.Query().Get("uri")
	if uri == "" {
		writeError(w, http.StatusBadRequest, codeValidation, "uri parameter is required")
		return
	}

	k, err := s.parseK(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}

	matches, err := s.session.QueryByID(uri, k)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, matchesToResponse(matches))
}

func matchesToResponse(matches []query.Match) searchResponse {
	resp := searchResponse{
		SimilarImages: make([]string, len(matches)),
		Distances:     make([]float64, len(matches)),
	}
	for i, m := range matches {
		resp.SimilarImages[i] = m.ID
		resp.Distances[i] = m.Distance
	}
	return resp
}

func (s *Server) parseK(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("k")
	if raw == "" {
		raw = r.FormValue("k")
	}
	if raw == "" {
		return s.opts.DefaultK, nil
	}
	k, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("k must be an integer: %q", raw)
	}
	if k <= 0 || k > s.opts.MaxK {
		return 0, fmt.Errorf("k must be between 1 and %d", s.opts.MaxK)
	}
	return k, nil
}

// unpackArchive extracts the archive into dir and returns the parsed
// manifest, a map from archive file path to original photo URI. Entry names
// and manifest paths that escape dir are rejected.
func unpackArchive(file io.ReaderAt, size int64, dir string) (map[string]string, error) {
	zr, err := zip.NewReader(file, size)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", domain.ErrPreprocess)
	}

	var manifest map[string]string
	for _, entry := range zr.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		name := entry.Name
		if !filepath.IsLocal(name) {
			return nil, fmt.Errorf("archive entry %q escapes extraction dir: %w", name, domain.ErrPreprocess)
		}

		if filepath.Base(name) == manifestName && manifest == nil {
			m, err := readManifest(entry)
			if err != nil {
				return nil, err
			}
			manifest = m
			continue
		}

		if err := extractEntry(entry, filepath.Join(dir, name)); err != nil {
			return nil, err
		}
	}

	if manifest == nil {
		return nil, fmt.Errorf("archive has no %s: %w", manifestName, domain.ErrPreprocess)
	}
	for path := range manifest {
		if !filepath.IsLocal(path) {
			return nil, fmt.Errorf("manifest entry %q points outside the archive: %w", path, domain.ErrPreprocess)
		}
	}
	return manifest, nil
}

func readManifest(entry *zip.File) (map[string]string, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", manifestName, domain.ErrPreprocess)
	}
	defer rc.Close()

	var manifest map[string]string
	if err := json.NewDecoder(rc).Decode(&manifest); err != nil {
		return nil, fmt.Errorf("parse %s: %w", manifestName, domain.ErrPreprocess)
	}
	return manifest, nil
}

func extractEntry(entry *zip.File, dst string) error {
	rc, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open archive entry %q: %w", entry.Name, domain.ErrPreprocess)
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("extract %q: %w", entry.Name, err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("extract %q: %w", entry.Name, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return fmt.Errorf("extract %q: %w", entry.Name, err)
	}
	return nil
}

// newToken returns an opaque upload token for correlating client requests
// with server logs.
func newToken() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return uuid.NewString()
	}
	return hex.EncodeToString(buf)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrPhotoNotFound,
		domain.ErrIndexNotReady,
		domain.ErrDimensionMismatch,
		domain.ErrPreprocess,
		domain.ErrConfiguration,
		domain.ErrInference,
		domain.ErrSessionClosed,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	logpkg.FromContext(r.Context()).Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.internalError(w, err)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
