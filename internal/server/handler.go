// Package server is the HTTP boundary over intake and result lookup. It
// stays a thin transport: every decision about jobs and results lives in the
// packages underneath.
package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/carnetocr/carnetocr/constants"
	"github.com/carnetocr/carnetocr/internal/common"
	"github.com/carnetocr/carnetocr/internal/intake"
	"github.com/carnetocr/carnetocr/internal/results"
)

// Uploads larger than this are rejected before touching intake.
const maxUploadBytes = 10 << 20

type Handler struct {
	intake *intake.Service
	lookup *results.Lookup
	log    *slog.Logger
}

func New(in *intake.Service, lookup *results.Lookup, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{intake: in, lookup: lookup, log: logger}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/procesar-imagen", h.submitImage)
	r.Get("/resultado/{jobID}", h.getResult)
	r.Get("/healthz", h.health)
	return r
}

func (h *Handler) submitImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	image, err := readImagePayload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobID, err := h.intake.Submit(r.Context(), image)
	if err != nil {
		if errors.Is(err, common.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error("server.submit_failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to queue job")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": "queued",
	})
}

func (h *Handler) getResult(w http.ResponseWriter, r *http.Request) {
	rec, err := h.lookup.Find(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		if errors.Is(err, results.ErrInvalidJobID) {
			writeError(w, http.StatusBadRequest, "invalid job id format")
			return
		}
		h.log.Error("server.lookup_failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load result")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readImagePayload accepts either a multipart form with an "image" file or a
// JSON body carrying "image_base64".
func readImagePayload(r *http.Request) ([]byte, error) {
	ct := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(ct, "multipart/form-data"):
		file, header, err := r.FormFile("image")
		if err != nil {
			return nil, fmt.Errorf("missing image file in form")
		}
		defer file.Close()
		if ext := constants.NormalizeExt(path.Ext(header.Filename)); ext != "" {
			if _, ok := constants.AllowedImageExtensions[ext]; !ok {
				return nil, fmt.Errorf("file extension %q not allowed", ext)
			}
		}
		b, err := io.ReadAll(file)
		if err != nil {
			return nil, fmt.Errorf("read image file: %w", err)
		}
		return b, nil
	case strings.HasPrefix(ct, "application/json"):
		var body struct {
			ImageBase64 string `json:"image_base64"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("invalid json body")
		}
		if body.ImageBase64 == "" {
			return nil, fmt.Errorf("no image provided")
		}
		b, err := base64.StdEncoding.DecodeString(body.ImageBase64)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 image")
		}
		return b, nil
	default:
		return nil, fmt.Errorf("no image provided")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
