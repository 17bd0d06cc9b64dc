package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aviz85/elevenlabs-bridge-sub001/internal/app/tasks"
	"github.com/aviz85/elevenlabs-bridge-sub001/internal/app/webhook"
)

// maxUploadBytes caps a single source upload at 2 GiB.
const maxUploadBytes = 2 << 30

// ─── Task intake and status ──────────────────────────────────────────────────

// handleSubmitTask accepts a multipart upload with a "file" part plus
// optional "callback_url" and "duration" (seconds) fields, and registers
// a transcription task.
func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("parse upload: %v", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	var duration float64
	if raw := r.FormValue("duration"); raw != "" {
		duration, err = strconv.ParseFloat(raw, 64)
		if err != nil || duration < 0 {
			writeError(w, http.StatusBadRequest, "duration must be a non-negative number of seconds")
			return
		}
	}

	sourcePath, err := s.saveUpload(file, header.Filename)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("store upload: %v", err))
		return
	}

	task, err := s.tasks.Submit(r.Context(), tasks.SubmitRequest{
		SourcePath:       sourcePath,
		OriginalFilename: header.Filename,
		CallbackURL:      r.FormValue("callback_url"),
		Duration:         duration,
	})
	if err != nil {
		os.Remove(sourcePath)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"taskId":        task.ID,
		"status":        string(task.Status),
		"totalSegments": task.TotalSegments,
	})
}

// saveUpload copies the uploaded stream under the upload directory. The
// stored name carries a uuid prefix so concurrent uploads of the same
// filename never collide.
func (s *Server) saveUpload(src io.Reader, filename string) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0700); err != nil {
		return "", err
	}
	path := filepath.Join(s.uploadDir, uuid.New().String()+"_"+filepath.Base(filename))
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.tasks.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	list, err := s.tasks.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	type taskSummary struct {
		TaskID            string `json:"taskId"`
		Status            string `json:"status"`
		OriginalFilename  string `json:"originalFilename"`
		TotalSegments     int    `json:"totalSegments"`
		CompletedSegments int    `json:"completedSegments"`
	}
	out := make([]taskSummary, len(list))
	for i, t := range list {
		out[i] = taskSummary{
			TaskID:            t.ID,
			Status:            string(t.Status),
			OriginalFilename:  t.OriginalFilename,
			TotalSegments:     t.TotalSegments,
			CompletedSegments: t.CompletedSegments,
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": out})
}

// ─── Provider callback ───────────────────────────────────────────────────────

// handleProviderCallback receives asynchronous transcription results.
// An unparseable body is the caller's fault (400). A well-formed
// callback that matches nothing still gets 200 so the provider stops
// redelivering it.
func (s *Server) handleProviderCallback(w http.ResponseWriter, r *http.Request) {
	var payload webhook.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("parse callback: %v", err))
		return
	}

	outcome, err := s.correlator.HandleProviderCallback(r.Context(), payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": string(outcome)})
}

// ─── Breaker administration ──────────────────────────────────────────────────

func (s *Server) handleListBreakers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"breakers": s.breakers.Stats()})
}

func (s *Server) handleResetBreaker(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !s.breakers.ForceReset(name) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown breaker %q", name))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"breaker": name, "state": "CLOSED"})
}
