package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"PageVault/internal/domain"
	"PageVault/internal/queue"
	"PageVault/internal/storage"
	"PageVault/internal/usecase"
	"PageVault/pkg/logger"
)

// Server exposes the ingestion and batch-submission surface plus the
// locally-served media proxy route.
type Server struct {
	ingestion *usecase.Ingestion
	imports   *queue.Queue
	media     *storage.MediaCache
	router    *mux.Router
}

// NewServer builds the router.
func NewServer(ingestion *usecase.Ingestion, imports *queue.Queue, media *storage.MediaCache) *Server {
	s := &Server{
		ingestion: ingestion,
		imports:   imports,
		media:     media,
		router:    mux.NewRouter(),
	}

	s.router.Use(accessLog)
	s.router.HandleFunc("/api/ingest", s.handleIngest).Methods(http.MethodPost)
	s.router.HandleFunc("/api/imports", s.handleCreateImport).Methods(http.MethodPost)
	s.router.HandleFunc("/api/imports/{id}", s.handleImportStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/media/{file}", s.handleMedia).Methods(http.MethodGet)
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

type ingestRequest struct {
	URL string `json:"url"`
}

type ingestResponse struct {
	VersionID string `json:"version_id"`
	ArticleID string `json:"article_id"`
	Hash      string `json:"hash"`
	Path      string `json:"path"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	version, err := s.ingestion.Ingest(r.Context(), req.URL)
	if err != nil {
		writeError(w, ingestStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{
		VersionID: version.ID,
		ArticleID: version.ArticleID,
		Hash:      version.Hash,
		Path:      version.Path,
	})
}

type importRequest struct {
	URLs      []string `json:"urls"`
	Submitter string   `json:"submitter"`
}

type importResponse struct {
	JobID   string `json:"job_id"`
	Total   int    `json:"total"`
	Skipped int    `json:"skipped"`
}

func (s *Server) handleCreateImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "urls are required")
		return
	}

	job, err := s.imports.CreateJob(r.Context(), req.URLs, req.Submitter)
	if err != nil {
		if errors.Is(err, domain.ErrAllDuplicates) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, importResponse{
		JobID:   job.ID,
		Total:   job.Total,
		Skipped: job.Skipped,
	})
}

func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := s.imports.Job(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "unknown job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	path := s.media.Path(mux.Vars(r)["file"])
	if path == "" {
		writeError(w, http.StatusBadRequest, "invalid media name")
		return
	}
	http.ServeFile(w, r, path)
}

// ingestStatus maps the error taxonomy onto HTTP statuses. The original URL
// and error text stay visible to the operator for resubmission.
func ingestStatus(err error) int {
	var fetchErr *domain.FetchError
	switch {
	case errors.Is(err, domain.ErrInvalidSource):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAlreadyInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientContent):
		return http.StatusUnprocessableEntity
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

var accessLogger = logger.New("http")

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accessLogger.Printf("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
