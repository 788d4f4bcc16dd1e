// Package server exposes the HTTP surface: the upload form, the multipart
// upload endpoint, liveness probes, and metrics.
package server

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/akimotok/clipcast/channels"
	"github.com/akimotok/clipcast/telemetry"
	"github.com/akimotok/clipcast/upload"
)

//go:embed form.html
var formFS embed.FS

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	pipeline       *upload.Pipeline
	resolver       *channels.Resolver
	maxUploadBytes int64
}

// NewHandlers creates a Handlers instance with the given dependencies.
func NewHandlers(pipe *upload.Pipeline, maxUploadBytes int64) *Handlers {
	return &Handlers{
		pipeline:       pipe,
		resolver:       pipe.Resolver,
		maxUploadBytes: maxUploadBytes,
	}
}

// HandleIndex serves the static upload form with the destination select
// populated from the configured closed set.
func (h *Handlers) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	page, err := formFS.ReadFile("form.html")
	if err != nil {
		http.Error(w, "form unavailable", http.StatusInternalServerError)
		return
	}
	var options strings.Builder
	for _, key := range h.resolver.Keys() {
		fmt.Fprintf(&options, "<option value=%q>%s</option>", key, key)
	}
	body := strings.Replace(string(page), "<!--destinations-->", options.String(), 1)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(body))
}

// HandleUpload accepts a multipart video upload and runs it through the
// stage-upload-relay pipeline. GET serves the form for convenience; POST does
// the work. One consistent status contract: 200 on success, 400 for anything
// the request got wrong, 500 when an upstream call failed.
func (h *Handlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	case http.MethodPost:
	default:
		respondJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		telemetry.Inc(telemetry.RequestsRejected)
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed multipart request"})
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			slog.Warn("failed to discard multipart temp files", slog.Any("err", err))
		}
	}()

	file, header := formFile(r, "file", "video")
	if file != nil {
		defer func() {
			if err := file.Close(); err != nil {
				slog.Warn("failed to close form file", slog.Any("err", err))
			}
		}()
	}

	req := upload.Request{
		Title:       r.FormValue("title"),
		Destination: formValue(r, "channel", "channel_id"),
		Author:      r.FormValue("author"),
	}
	if file != nil {
		req.Body = file
		req.Filename = header.Filename
	}

	res, err := h.pipeline.Run(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		var ve *upload.ValidationError
		if errors.As(err, &ve) {
			status = http.StatusBadRequest
		}
		telemetry.LoggerWithCorr(r.Context()).Error("upload request failed",
			slog.Int("status", status), slog.Any("err", err))
		respondJSON(w, status, map[string]string{"error": publicError(err)})
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "url": res.URL})
}

// HandleKeepAlive answers liveness pings from external uptime monitors.
func (h *Handlers) HandleKeepAlive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"message": "Alive"})
}

// HandleHealthz responds to container liveness probes.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// formFile returns the first present file part among the accepted field names.
func formFile(r *http.Request, names ...string) (multipart.File, *multipart.FileHeader) {
	for _, name := range names {
		if f, h, err := r.FormFile(name); err == nil {
			return f, h
		}
	}
	return nil, nil
}

// formValue returns the first non-empty value among the accepted field names.
func formValue(r *http.Request, names ...string) string {
	for _, name := range names {
		if v := r.FormValue(name); v != "" {
			return v
		}
	}
	return ""
}

// publicError keeps provider/internal detail out of 500 bodies while leaving
// validation messages intact.
func publicError(err error) string {
	var ve *upload.ValidationError
	if errors.As(err, &ve) {
		return ve.Msg
	}
	return "upload failed"
}
