package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/olgkv/bookmarkchecker/internal/bookmarkfile"
	"github.com/olgkv/bookmarkchecker/internal/domain"
	"github.com/olgkv/bookmarkchecker/internal/export"
	"github.com/olgkv/bookmarkchecker/internal/locale"
	"github.com/olgkv/bookmarkchecker/internal/service"
	"github.com/olgkv/bookmarkchecker/internal/storage"
)

type contextKey struct{ name string }

// BookmarksNumContextKey holds an *int that Check fills with the batch size
// so request logging can report it.
var BookmarksNumContextKey = &contextKey{name: "bookmarks_num"}

const (
	exportTimeout = 30 * time.Second

	defaultMaxBookmarks   = 5000
	defaultMaxUploadBytes = 10 << 20
	multipartMemory       = 4 << 20
)

type CheckRequest struct {
	Bookmarks []domain.Bookmark `json:"bookmarks"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Handler struct {
	svc            *service.Service
	maxBookmarks   int
	maxUploadBytes int64
	logger         *slog.Logger
}

func NewHandler(svc *service.Service, maxBookmarks int, maxUploadBytes int64, logger *slog.Logger) *Handler {
	if maxBookmarks <= 0 {
		maxBookmarks = defaultMaxBookmarks
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, maxBookmarks: maxBookmarks, maxUploadBytes: maxUploadBytes, logger: logger}
}

// Register mounts the API on r. mw apply to the /api routes only.
func (h *Handler) Register(r *mux.Router, mw ...mux.MiddlewareFunc) {
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)

	// full paths on the root router keep mux answering 405 on a method mismatch
	r.Handle("/api/check", chain(http.HandlerFunc(h.Check), mw)).Methods(http.MethodPost)
	r.Handle("/api/runs/{id}", chain(http.HandlerFunc(h.Run), mw)).Methods(http.MethodGet)
	r.Handle("/api/runs/{id}/export", chain(http.HandlerFunc(h.Export), mw)).Methods(http.MethodGet)
}

func chain(h http.Handler, mw []mux.MiddlewareFunc) http.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

// Check accepts either a bookmark file upload (multipart field "file") or a
// JSON list of bookmarks, validates every link and responds with the stored run.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	bookmarks, status, err := h.readBookmarks(r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	if len(bookmarks) > h.maxBookmarks {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("too many bookmarks: %d, limit is %d", len(bookmarks), h.maxBookmarks))
		return
	}

	if num, ok := r.Context().Value(BookmarksNumContextKey).(*int); ok {
		*num = len(bookmarks)
	}

	run, err := h.svc.CheckBookmarks(r.Context(), bookmarks)
	if err != nil {
		if errors.Is(err, service.ErrNoBookmarks) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "check failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "check failed")
		return
	}

	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) readBookmarks(r *http.Request) ([]domain.Bookmark, int, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, http.StatusUnsupportedMediaType, errors.New("missing or invalid Content-Type")
	}

	switch mediaType {
	case "multipart/form-data":
		return h.readUpload(r)
	case "application/json":
		var req CheckRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, bodyErrorStatus(err), fmt.Errorf("decode request: %w", err)
		}
		if len(req.Bookmarks) == 0 {
			return nil, http.StatusBadRequest, service.ErrNoBookmarks
		}
		return req.Bookmarks, http.StatusOK, nil
	}
	return nil, http.StatusUnsupportedMediaType, fmt.Errorf("unsupported Content-Type %q", mediaType)
}

func (h *Handler) readUpload(r *http.Request) ([]domain.Bookmark, int, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, bodyErrorStatus(err), fmt.Errorf("parse upload: %w", err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, http.StatusBadRequest, errors.New(`missing "file" field`)
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !bookmarkfile.IsHTML(header.Filename, contentType) {
		return nil, http.StatusUnsupportedMediaType, bookmarkfile.ErrNotHTML
	}

	// a generic part type carries no charset and would only confuse sniffing
	if mt, _, _ := mime.ParseMediaType(contentType); mt != "text/html" {
		contentType = "text/html"
	}

	bookmarks, err := bookmarkfile.Parse(file, contentType)
	if err != nil {
		return nil, bodyErrorStatus(err), err
	}
	return bookmarks, http.StatusOK, nil
}

func bodyErrorStatus(err error) int {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.Run(mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, storage.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "load run failed")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// Export streams a stored run as a file attachment. format defaults to xlsx,
// filter to all; the language comes from ?lang or Accept-Language.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	rawFormat := q.Get("format")
	if rawFormat == "" {
		rawFormat = string(export.FormatXLSX)
	}
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter, err := export.ParseFilter(q.Get("filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lang := locale.Negotiate(q.Get("lang"), r.Header.Get("Accept-Language"))

	ctx, cancel := context.WithTimeout(r.Context(), exportTimeout)
	defer cancel()

	doc, err := h.svc.Export(ctx, mux.Vars(r)["id"], format, filter, lang)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrRunNotFound):
			writeError(w, http.StatusNotFound, "run not found")
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
			writeError(w, http.StatusGatewayTimeout, "export timeout")
		default:
			h.logger.ErrorContext(ctx, "export failed", slog.String("format", string(format)), slog.Any("error", err))
			writeError(w, http.StatusInternalServerError, "export failed")
		}
		return
	}

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Data)))
	_, _ = w.Write(doc.Data)
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
