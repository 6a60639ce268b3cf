// Package httpapi exposes a treelog.Reader as a read-only JSON API over
// gorilla/mux: list branch ids, fetch one branch, and filter by tag when
// the underlying Reader supports it. It is a query surface only -- it
// never accepts writes, and it is not the interactive tree viewer the
// source system shipped.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/mdzesseis/treelog"
)

// TagLister is implemented by Readers that maintain a tag index, such as
// filebackend.Reader. It is optional: Server answers the by-tag route with
// 501 Not Implemented when the configured Reader doesn't implement it.
type TagLister interface {
	BranchIDsByTag(ctx context.Context, tag string) ([]string, error)
}

// Server wraps a treelog.Reader in a gorilla/mux router.
type Server struct {
	reader treelog.Reader
	logger *logrus.Logger
	router *mux.Router
}

// NewServer constructs a Server backed by reader. A nil logger defaults
// to logrus.StandardLogger().
func NewServer(reader treelog.Reader, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{reader: reader, logger: logger, router: mux.NewRouter()}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.HandleFunc("/branches", s.handleListBranches).Methods(http.MethodGet)
	s.router.HandleFunc("/branches/{id}", s.handleGetBranch).Methods(http.MethodGet)
}

func (s *Server) handleListBranches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if tag := r.URL.Query().Get("tag"); tag != "" {
		lister, ok := s.reader.(TagLister)
		if !ok {
			http.Error(w, "reader does not support tag filtering", http.StatusNotImplemented)
			return
		}
		ids, err := lister.BranchIDsByTag(ctx, tag)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, ids)
		return
	}

	ids, err := s.reader.GetBranchIDs(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, ids)
}

func (s *Server) handleGetBranch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	branches, err := s.reader.GetBranches(r.Context(), []string{id})
	if err != nil {
		s.writeError(w, err)
		return
	}

	bd, ok := branches[id]
	if !ok {
		http.Error(w, "branch not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, bd)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Warn("httpapi: failed writing response body")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.logger.WithError(err).Error("httpapi: reader call failed")
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
