package api

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/printforge/pkg/importjob"
	"github.com/dmitrymomot/printforge/pkg/logger"
)

// ownerKey tags job metadata with the user that created it.
const ownerKey = "userId"

type importRequest struct {
	URL      string         `json:"url"`
	FileName string         `json:"fileName,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type jobCreated struct {
	JobID string `json:"jobId"`
}

func (s *Server) createImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	id, err := s.jobs.CreateImport(r.Context(), req.URL, req.FileName, s.ownedMetadata(r, req.Metadata))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobCreated{JobID: id})
}

// createUpload takes a multipart form with the model in "file" and optional
// "fileName" and "metadata" (a JSON object) fields.
func (s *Server) createUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadSize)
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) || strings.Contains(err.Error(), "request body too large") {
			s.writeError(w, r, ErrBodyTooLarge)
			return
		}
		s.writeError(w, r, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: file is required", ErrInvalidRequest))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var metadata map[string]any
	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			s.writeError(w, r, fmt.Errorf("%w: metadata must be a JSON object", ErrInvalidRequest))
			return
		}
	}

	name := cmp.Or(r.FormValue("fileName"), header.Filename)
	id, err := s.jobs.CreateUpload(r.Context(), data, name, s.ownedMetadata(r, metadata))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobCreated{JobID: id})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.ownedJob(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// streamJobEvents replays the job's transitions and then follows it live
// until the terminal event or until the client goes away.
func (s *Server) streamJobEvents(w http.ResponseWriter, r *http.Request) {
	if _, err := s.ownedJob(r); err != nil {
		s.writeError(w, r, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, ErrStreaming)
		return
	}

	id := chi.URLParam(r, "id")
	sub, err := s.jobs.Subscribe(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer sub.Close()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				s.logger.DebugContext(r.Context(), "event stream write failed",
					logger.JobID(id),
					logger.Error(err),
				)
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, ev importjob.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Type, data)
	return err
}

// ownedJob hides jobs of other users behind a 404.
func (s *Server) ownedJob(r *http.Request) (importjob.Job, error) {
	job, err := s.jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return importjob.Job{}, err
	}
	if owner, _ := job.Metadata[ownerKey].(string); owner != identityFrom(r.Context()).UserID {
		return importjob.Job{}, ErrNotFound
	}
	return job, nil
}

func (s *Server) ownedMetadata(r *http.Request, metadata map[string]any) map[string]any {
	out := maps.Clone(metadata)
	if out == nil {
		out = make(map[string]any, 1)
	}
	out[ownerKey] = identityFrom(r.Context()).UserID
	return out
}
