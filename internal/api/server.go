package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/cors"
	"github.com/tribes-lab/backend/internal/model"
	"github.com/tribes-lab/backend/internal/repository"
	"github.com/tribes-lab/backend/pkg/xcontext"
	"gorm.io/gorm"
)

// Server exposes the repository view of posts so that other instances can
// use this one as a lookup tier instead of hitting the chain.
type Server struct {
	postRepo repository.PostRepository
	rootCtx  context.Context
	httpSrv  *http.Server
}

func NewServer(ctx context.Context, postRepo repository.PostRepository) *Server {
	s := &Server{postRepo: postRepo, rootCtx: ctx}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/posts/", s.getPost)

	var handler http.Handler = mux
	cfg := xcontext.Configs(ctx).ApiServer
	if len(cfg.AllowCORS) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: cfg.AllowCORS,
			AllowedMethods: []string{http.MethodGet},
		}).Handler(handler)
	}

	s.httpSrv = &http.Server{Addr: cfg.Address(), Handler: handler}
	return s
}

// ListenAndServe blocks until Shutdown or a listener error.
func (s *Server) ListenAndServe() error {
	xcontext.Logger(s.rootCtx).Infof("Posts API listening on %s", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rawID := strings.TrimPrefix(r.URL.Path, "/api/posts/")
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		http.Error(w, "invalid post id", http.StatusBadRequest)
		return
	}

	// The root context carries the DB and redis wiring; the request context
	// only contributes cancellation.
	ttl := xcontext.Configs(s.rootCtx).Cache.PersistentTTL
	record, _, err := s.postRepo.GetByID(s.rootCtx, id, ttl)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, repository.ErrRecordNotFound) {
			http.Error(w, "post not found", http.StatusNotFound)
			return
		}

		xcontext.Logger(s.rootCtx).Errorf("Cannot load post %d: %v", id, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	resp := struct {
		Post model.Post `json:"post"`
	}{Post: model.ConvertPost(record)}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		xcontext.Logger(s.rootCtx).Warnf("Cannot encode post %d: %v", id, err)
	}
}
