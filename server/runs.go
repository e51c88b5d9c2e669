package server

import (
	"errors"
	"io"
	"net/http"
	"path"

	"github.com/hairizuanbinnoorazman/rateloop/logger"
	"github.com/hairizuanbinnoorazman/rateloop/run"
	"github.com/hairizuanbinnoorazman/rateloop/storage"
)

// RunHandler serves run history and run artifacts.
type RunHandler struct {
	runStore run.Store
	storage  storage.BlobStorage
	logger   logger.Logger
}

// NewRunHandler creates a new run handler.
func NewRunHandler(runStore run.Store, blobStorage storage.BlobStorage, log logger.Logger) *RunHandler {
	return &RunHandler{
		runStore: runStore,
		storage:  blobStorage,
		logger:   log,
	}
}

// Artifact is one stored file of a run.
type Artifact struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

// List handles listing runs, newest first.
func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	runs, err := h.runStore.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	total, err := h.runStore.Count(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to count runs")
		return
	}

	respondJSON(w, http.StatusOK, NewPaginatedResponse(runs, total, limit, offset))
}

// GetByID handles getting a run by ID.
func (h *RunHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	rn, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, rn)
}

// ListSessions handles listing the sessions of a run.
func (h *RunHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	rn, ok := h.loadRun(w, r)
	if !ok {
		return
	}

	sessions, err := h.runStore.ListSessions(r.Context(), rn.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	respondJSON(w, http.StatusOK, NewPaginatedResponse(sessions, len(sessions), len(sessions), 0))
}

// Summary streams the text summary of a run.
func (h *RunHandler) Summary(w http.ResponseWriter, r *http.Request) {
	rn, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	if rn.SummaryPath == "" {
		respondError(w, http.StatusNotFound, "run has no summary")
		return
	}

	reader, err := h.storage.Download(r.Context(), rn.SummaryPath)
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			respondError(w, http.StatusNotFound, "summary not found in storage")
			return
		}
		h.logger.Error(r.Context(), "failed to download from storage", map[string]interface{}{
			"error": err.Error(),
			"path":  rn.SummaryPath,
		})
		respondError(w, http.StatusInternalServerError, "failed to download summary")
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, reader); err != nil {
		h.logger.Error(r.Context(), "failed to stream summary", map[string]interface{}{
			"error": err.Error(),
			"path":  rn.SummaryPath,
		})
	}
}

// Artifacts lists the files stored next to the run summary.
func (h *RunHandler) Artifacts(w http.ResponseWriter, r *http.Request) {
	rn, ok := h.loadRun(w, r)
	if !ok {
		return
	}

	artifacts := []Artifact{}
	if rn.SummaryPath != "" {
		paths, err := h.storage.List(r.Context(), path.Dir(rn.SummaryPath)+"/")
		if err != nil {
			h.logger.Error(r.Context(), "failed to list artifacts", map[string]interface{}{
				"error":  err.Error(),
				"run_id": rn.ID.String(),
			})
			respondError(w, http.StatusInternalServerError, "failed to list artifacts")
			return
		}
		for _, p := range paths {
			url, err := h.storage.GetURL(r.Context(), p)
			if err != nil {
				respondError(w, http.StatusInternalServerError, "failed to get artifact url")
				return
			}
			artifacts = append(artifacts, Artifact{Path: p, URL: url})
		}
	}

	respondJSON(w, http.StatusOK, NewPaginatedResponse(artifacts, len(artifacts), len(artifacts), 0))
}

func (h *RunHandler) loadRun(w http.ResponseWriter, r *http.Request) (*run.Run, bool) {
	id, ok := parseUUIDOrRespond(w, r, "id", "run")
	if !ok {
		return nil, false
	}

	rn, err := h.runStore.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, run.ErrRunNotFound) {
			respondError(w, http.StatusNotFound, "run not found")
			return nil, false
		}
		respondError(w, http.StatusInternalServerError, "failed to get run")
		return nil, false
	}
	return rn, true
}
