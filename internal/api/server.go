// Package api exposes the corpus over HTTP: multi-file uploads, archive
// conversation selection, listing, subject tagging, and deletion.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Elytride/AlterEcho/internal/archive"
	"github.com/Elytride/AlterEcho/internal/audit"
	"github.com/Elytride/AlterEcho/internal/corpus"
	"github.com/Elytride/AlterEcho/internal/ingest"
)

// maxUploadBytes caps one multipart upload request.
const maxUploadBytes = 512 << 20

type Server struct {
	router   *chi.Mux
	port     int
	pipeline *ingest.Pipeline
	corpus   *corpus.Store
	audit    *audit.Store
	logger   *slog.Logger
}

func NewServer(port int, pipeline *ingest.Pipeline, cs *corpus.Store, au *audit.Store, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:   router,
		port:     port,
		pipeline: pipeline,
		corpus:   cs,
		audit:    au,
		logger:   logger,
	}

	router.Get("/health", s.health)
	router.Route("/api/files", func(r chi.Router) {
		r.Post("/text/zip/select", s.selectZipConversations)
		r.Post("/{fileType}", s.uploadFiles)
		r.Get("/{fileType}", s.listFiles)
		r.Post("/{fileType}/{fileID}/subject", s.setSubject)
		r.Delete("/{fileType}/{fileID}", s.deleteFile)
	})
	router.Get("/api/audit/recent", s.recentAudit)

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// uploadFiles handles POST /api/files/{fileType}. Archives short-circuit the
// batch: the first recognized export zip returns a pending-selection response
// and later files in the same request are not processed.
func (s *Server) uploadFiles(w http.ResponseWriter, r *http.Request) {
	fileType := chi.URLParam(r, "fileType")
	if !corpus.ValidType(fileType) {
		writeError(w, http.StatusBadRequest, "Invalid file type")
		return
	}
	ft := corpus.FileType(fileType)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "No files selected")
		return
	}

	batch := s.pipeline.NewBatch()
	uploaded := []corpus.Metadata{}
	rejected := []ingest.Rejection{}

	for _, fh := range files {
		if fh.Filename == "" {
			continue
		}

		fileID := ingest.NewFileID()
		ext := strings.ToLower(filepath.Ext(fh.Filename))
		path := s.corpus.FilePath(ft, fileID, ext)

		if err := saveUpload(fh, path); err != nil {
			s.logger.Warn("failed to save upload", "name", fh.Filename, "error", err)
			rejected = append(rejected, ingest.Rejection{Name: fh.Filename, Reason: "Failed to save"})
			continue
		}

		res := s.pipeline.IngestFile(r.Context(), batch, ft, fileID, fh.Filename, path)
		switch {
		case res.Archive != nil:
			writeJSON(w, http.StatusOK, map[string]any{
				"success":       true,
				"type":          zipUploadType(res.Archive.Kind),
				"zip_id":        res.Archive.ID,
				"conversations": res.Archive.Units,
				"uploaded":      uploaded,
				"rejected":      rejected,
			})
			return
		case res.Accepted != nil:
			uploaded = append(uploaded, *res.Accepted)
		case res.Rejected != nil:
			rejected = append(rejected, *res.Rejected)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"uploaded":       uploaded,
		"rejected":       rejected,
		"uploaded_count": len(uploaded),
	})
}

func zipUploadType(kind archive.Kind) string {
	if kind == archive.KindDiscord {
		return "discord_zip_upload"
	}
	return "zip_upload"
}

func saveUpload(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return out.Close()
}

type selectRequest struct {
	ZipID         string   `json:"zip_id"`
	Conversations []string `json:"conversations"`
}

// selectZipConversations handles POST /api/files/text/zip/select.
func (s *Server) selectZipConversations(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.ZipID == "" {
		writeError(w, http.StatusNotFound, "ZIP not found")
		return
	}

	result, err := s.pipeline.CompleteSelection(r.Context(), req.ZipID, req.Conversations)
	if err != nil {
		if errors.Is(err, ingest.ErrArchiveNotFound) {
			writeError(w, http.StatusNotFound, "ZIP not found")
			return
		}
		s.logger.Error("selection failed", "zip_id", req.ZipID, "error", err)
		writeError(w, http.StatusInternalServerError, "Selection failed")
		return
	}

	uploaded := result.Uploaded
	if uploaded == nil {
		uploaded = []corpus.Metadata{}
	}
	rejectedList := result.Rejected
	if rejectedList == nil {
		rejectedList = []ingest.Rejection{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"uploaded": uploaded,
		"rejected": rejectedList,
	})
}

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	fileType := chi.URLParam(r, "fileType")
	if !corpus.ValidType(fileType) {
		writeError(w, http.StatusBadRequest, "Invalid type")
		return
	}
	ft := corpus.FileType(fileType)
	files := s.corpus.List(ft)
	writeJSON(w, http.StatusOK, map[string]any{"files": files, "count": len(files)})
}

type subjectRequest struct {
	Subject string `json:"subject"`
}

func (s *Server) setSubject(w http.ResponseWriter, r *http.Request) {
	fileType := chi.URLParam(r, "fileType")
	if !corpus.ValidType(fileType) {
		writeError(w, http.StatusBadRequest, "Invalid type")
		return
	}
	ft := corpus.FileType(fileType)

	var req subjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Subject == "" {
		writeError(w, http.StatusBadRequest, "No subject")
		return
	}

	fileID := chi.URLParam(r, "fileID")
	if err := s.corpus.SetSubject(ft, fileID, req.Subject); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		s.logger.Error("set subject failed", "id", fileID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to set subject")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "subject": req.Subject})
}

func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request) {
	fileType := chi.URLParam(r, "fileType")
	if !corpus.ValidType(fileType) {
		writeError(w, http.StatusBadRequest, "Invalid type")
		return
	}
	ft := corpus.FileType(fileType)

	fileID := chi.URLParam(r, "fileID")
	if err := s.corpus.Delete(ft, fileID); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		s.logger.Error("delete failed", "id", fileID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) recentAudit(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	records, err := s.audit.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("audit query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Audit query failed")
		return
	}
	if records == nil {
		records = []audit.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
