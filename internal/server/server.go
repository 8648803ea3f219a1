// Package server serves the generated site and its datasets for local preview.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/varoOP/seasondb/internal/domain"
	"github.com/varoOP/seasondb/internal/metrics"
	"github.com/varoOP/seasondb/pkg/season"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	log        zerolog.Logger
	router     chi.Router
	partitions domain.PartitionRepository
	db         Pinger
}

// New builds the router. db may be nil, in which case /healthz only reports liveness.
func New(log zerolog.Logger, fs afero.Fs, outputDir string, partitions domain.PartitionRepository, db Pinger) *Server {
	s := &Server{
		log:        log.With().Str("module", "server").Logger(),
		partitions: partitions,
		db:         db,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", metrics.Handler())
	r.Route("/api", func(r chi.Router) {
		r.Get("/periods", s.listPeriods)
		r.Get("/periods/{key}", s.getPeriod)
	})
	r.Handle("/*", http.FileServer(afero.NewHttpFs(fs).Dir(outputDir)))

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server error")
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "server shutdown error")
	}
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			s.log.Error().Err(err).Msg("database ping failed")
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listPeriods returns the persisted period keys, newest first.
func (s *Server) listPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := s.partitions.List(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list periods")
		writeError(w, http.StatusInternalServerError, "failed to list periods")
		return
	}

	sort.Slice(periods, func(i, j int) bool { return periods[j].Less(periods[i]) })
	keys := make([]string, 0, len(periods))
	for _, p := range periods {
		keys = append(keys, p.Key())
	}
	writeJSON(w, http.StatusOK, map[string]any{"periods": keys})
}

type recordView struct {
	ID           string `json:"bangumi_id"`
	Name         string `json:"anime_name"`
	ImageURL     string `json:"anime_image_url,omitempty"`
	Weekday      string `json:"premiere_date,omitempty"`
	PremiereTime string `json:"premiere_time,omitempty"`
	Story        string `json:"story,omitempty"`
}

func (s *Server) getPeriod(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid period key")
		return
	}
	p, err := season.ParseKey(key)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ok, err := s.partitions.Exists(r.Context(), p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read period")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "period not found")
		return
	}

	part, err := s.partitions.Get(r.Context(), p)
	if err != nil {
		s.log.Error().Err(err).Str("period", p.Key()).Msg("failed to read period")
		writeError(w, http.StatusInternalServerError, "failed to read period")
		return
	}

	views := make([]recordView, 0, len(part.Records))
	for _, rec := range part.Records {
		views = append(views, recordView{
			ID:           rec.ID,
			Name:         rec.Name,
			ImageURL:     rec.ImageRef,
			Weekday:      rec.Weekday.OrElse(""),
			PremiereTime: rec.PremiereTime.OrElse(""),
			Story:        rec.Description,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"period":       p.Key(),
		"generated_at": part.GeneratedAt.Format(time.RFC3339),
		"anime_list":   views,
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request completed")
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
