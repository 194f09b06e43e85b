package upload

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/Tyrowin/roomchat/internal/metrics"
)

// FormField is the multipart field carrying the file.
const FormField = "file"

// multipart framing allowance on top of the file size limit
const formOverhead = 1 << 20

// Handler exposes a Store over HTTP.
type Handler struct {
	store   *Store
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler for store. m may be nil.
func NewHandler(store *Store, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{store: store, log: logger, metrics: m}
}

type errorResponse struct {
	Error string `json:"error"`
}

// ServeUpload accepts a multipart POST and answers with the stored file's
// Result.
func (h *Handler) ServeUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.store.MaxSize()+formOverhead)

	res, err := h.receive(r)
	if err != nil {
		status := statusFor(err)
		h.metrics.Upload("rejected")
		h.log.Info("upload rejected", "remote", r.RemoteAddr, "status", status, "err", err)
		writeJSON(w, status, errorResponse{Error: messageFor(err)})
		return
	}

	h.metrics.Upload("ok")
	h.log.Info("file uploaded", "name", res.Name, "stored", res.StoredName, "size", res.Size, "type", res.MimeType)
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) receive(r *http.Request) (Result, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return Result{}, ErrNoFile
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return Result{}, ErrNoFile
		}
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return Result{}, err
			}
			return Result{}, fmt.Errorf("%w: %v", ErrNoFile, err)
		}
		if part.FormName() != FormField {
			_ = part.Close()
			continue
		}
		return h.save(part)
	}
}

func (h *Handler) save(part *multipart.Part) (Result, error) {
	defer func() { _ = part.Close() }()

	if part.FileName() == "" {
		return Result{}, ErrEmptyFilename
	}
	return h.store.Save(part.FileName(), part)
}

// ServeFile serves a stored upload by the last path segment of the request.
func (h *Handler) ServeFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stored := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	f, err := h.store.Open(stored)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeContent(w, r, stored, info.ModTime(), f)
}

func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, ErrNoFile), errors.Is(err, ErrEmptyFilename):
		return http.StatusBadRequest
	case errors.Is(err, ErrFileTooLarge), errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(err error) string {
	switch statusFor(err) {
	case http.StatusBadRequest:
		if errors.Is(err, ErrEmptyFilename) {
			return ErrEmptyFilename.Error()
		}
		return ErrNoFile.Error()
	case http.StatusRequestEntityTooLarge:
		return ErrFileTooLarge.Error()
	default:
		return "upload failed"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
