package web

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mberg/product-importer/internal/catalog"
	"github.com/mberg/product-importer/internal/importer"
)

// handleUpload accepts a CSV file and starts an asynchronous import.
// The upload is spooled to a temp file first so the import worker can
// read it in two passes without holding the file in memory.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, r, http.StatusRequestEntityTooLarge, "file too large or invalid form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	if header.Filename != "" && !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		writeError(w, r, http.StatusBadRequest, "only CSV files are accepted")
		return
	}

	src, cleanup, err := s.spool(file)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("spooling upload: %w", err))
		return
	}

	taskID, err := s.imports.StartImport(r.Context(), src, cleanup)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"task_id": taskID,
		"status":  string(catalog.JobPending),
	})
}

// spool copies the upload to a temp file and returns a re-openable
// source plus a cleanup that removes it.
func (s *Server) spool(file io.Reader) (importer.Source, func(), error) {
	tmp, err := os.CreateTemp(s.cfg.Import.SpoolDir, "import-*.csv")
	if err != nil {
		return nil, nil, err
	}
	path := tmp.Name()
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		os.Remove(path)
		return nil, nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(path)
		return nil, nil, err
	}

	src, err := importer.NewFileSource(path)
	if err != nil {
		os.Remove(path)
		return nil, nil, err
	}
	cleanup := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("removing spooled upload failed", "path", path, "error", err)
		}
	}
	return src, cleanup, nil
}

// handleTaskStatus returns the durable job record for polling clients.
func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		writeError(w, r, http.StatusBadRequest, "missing task ID")
		return
	}

	job, err := s.imports.Job(r.Context(), taskID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleTaskEvents streams live progress via Server-Sent Events. The
// stream replays the job's current state first, then follows the hub
// until a terminal event or client disconnect.
func (s *Server) handleTaskEvents(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		writeError(w, r, http.StatusBadRequest, "missing task ID")
		return
	}

	// Subscribe before the snapshot so no update can fall between them.
	events, cancel := s.hub.Subscribe(taskID)
	defer cancel()

	job, err := s.imports.Job(r.Context(), taskID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming not supported")
		return
	}

	writeSSE := func(event string, v any) {
		data, _ := json.Marshal(v)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
	}

	writeSSE("status", job)
	if job.Status.Terminal() {
		return
	}

	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			writeSSE(e.Type, e)
			if e.Terminal() {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
