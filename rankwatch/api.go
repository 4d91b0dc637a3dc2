package rankwatch

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handler returns the admin HTTP API.
//
//	GET  /health
//	GET  /api/sources
//	GET  /api/sources/{source}/latest
//	POST /api/sources/{source}/collect
//	GET  /api/snapshots?source=&status=&limit=
//	GET  /api/snapshots/{id}
//	GET  /api/buckets/{key}/snapshots
func (svc *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(svc.requestLog)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/sources", svc.handleSources)
		r.Get("/sources/{source}/latest", svc.handleLatest)
		r.Post("/sources/{source}/collect", svc.handleCollect)
		r.Get("/snapshots", svc.handleSnapshots)
		r.Get("/snapshots/{id}", svc.handleSnapshot)
		r.Get("/buckets/{key}/snapshots", svc.handleBucket)
	})
	return r
}

func (svc *Service) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		svc.logger.Debug("api: request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	})
}

type sourceView struct {
	ID       string `json:"id"`
	BaseURL  string `json:"base_url"`
	ListPath string `json:"list_path"`
	URL      string `json:"url"`
	Offset   string `json:"offset"`
	Paused   bool   `json:"paused"`
}

func (svc *Service) sourceViews() []sourceView {
	out := make([]sourceView, 0, len(svc.cfg.Sources))
	for _, sc := range svc.cfg.Sources {
		src, err := svc.sources.Resolve(sc.ID)
		if err != nil {
			continue
		}
		out = append(out, sourceView{
			ID:       src.ID,
			BaseURL:  src.BaseURL,
			ListPath: src.ListPath,
			URL:      src.ResolveURL(),
			Offset:   src.Offset.String(),
			Paused:   sc.Paused,
		})
	}
	return out
}

func (svc *Service) handleSources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, svc.sourceViews())
}

func (svc *Service) handleCollect(w http.ResponseWriter, r *http.Request) {
	snap, err := svc.Collect(r.Context(), chi.URLParam(r, "source"))
	switch {
	case errors.Is(err, ErrUnsupported):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, snap)
	}
}

func (svc *Service) handleLatest(w http.ResponseWriter, r *http.Request) {
	snap, err := svc.LatestSuccess(r.Context(), chi.URLParam(r, "source"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (svc *Service) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status, err := parseStatus(q.Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	snaps, err := svc.Snapshots(r.Context(), Filter{
		Source: q.Get("source"),
		Status: status,
		Limit:  queryInt(r, "limit", 0),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (svc *Service) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid snapshot id"))
		return
	}
	snap, err := svc.Snapshot(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (svc *Service) handleBucket(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	snaps, err := svc.BucketSnapshots(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnsupported):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
