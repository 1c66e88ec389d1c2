// Package server exposes a *mds.Store over HTTP, one JSON endpoint per
// public operation, using github.com/gorilla/mux for path-parameter
// routing in the style the pack's REST-shaped services (the transport
// service in the teacher's own module tree) use throughout.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/StevoGTA/Mini-Document-Storage-sub000/internal/core"
	"github.com/StevoGTA/Mini-Document-Storage-sub000/mds"
)

// Server wraps a *mds.Store with an HTTP surface under /v1/.
type Server struct {
	store  *mds.Store
	router *mux.Router
}

// New builds a Server and registers its routes.
func New(store *mds.Store) *Server {
	s := &Server{store: store, router: mux.NewRouter()}
	s.routes()
	return s
}

// ServeHTTP lets Server be used directly with http.ListenAndServe.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	v1 := s.router.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/{type}/{id}", s.handleGetDocument).Methods(http.MethodGet)
	v1.HandleFunc("/{type}", s.handleCreateDocument).Methods(http.MethodPost)
	v1.HandleFunc("/{type}/{id}", s.handleUpdateDocument).Methods(http.MethodPatch)
	v1.HandleFunc("/{type}/{id}", s.handleRemoveDocument).Methods(http.MethodDelete)
	v1.HandleFunc("/{type}", s.handleDocumentCount).Methods(http.MethodGet).Queries("count", "1")

	v1.HandleFunc("/{type}/{id}/attachment", s.handleAttachmentAdd).Methods(http.MethodPost)
	v1.HandleFunc("/{type}/{id}/attachment/{attachmentID}", s.handleAttachmentContent).Methods(http.MethodGet)
	v1.HandleFunc("/{type}/{id}/attachment/{attachmentID}", s.handleAttachmentUpdate).Methods(http.MethodPatch)
	v1.HandleFunc("/{type}/{id}/attachment/{attachmentID}", s.handleAttachmentRemove).Methods(http.MethodDelete)

	assoc := s.router.PathPrefix("/v1/association/{name}").Subrouter()
	assoc.HandleFunc("/from/{id}", s.handleAssociationFrom).Methods(http.MethodGet)
	assoc.HandleFunc("/to/{id}", s.handleAssociationTo).Methods(http.MethodGet)
	assoc.HandleFunc("", s.handleAssociationUpdate).Methods(http.MethodPut)

	coll := s.router.PathPrefix("/v1/collection/{name}").Subrouter()
	coll.HandleFunc("/{type}", s.handleCollectionDocumentIDs).Methods(http.MethodGet)

	idx := s.router.PathPrefix("/v1/index/{name}/{type}").Subrouter()
	idx.HandleFunc("", s.handleIndexLookup).Methods(http.MethodGet)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		core.Component("server").Warn("encode response failed", zap.Error(err))
	}
}

func writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

// statusFor maps the engine's error taxonomy onto HTTP status codes per
// the "404 for Unknown*, 409 for version/association mismatches, 400 for
// WrongValueType, 500 for BackendIO/SerializationFailure" scheme.
func statusFor(err error) int {
	var se *mds.StoreError
	if !errors.As(err, &se) {
		return http.StatusInternalServerError
	}
	switch se.Kind {
	case mds.ErrorKindUnknownDocumentType, mds.ErrorKindUnknownDocumentID,
		mds.ErrorKindUnknownAttachmentID, mds.ErrorKindUnknownAssociation,
		mds.ErrorKindUnknownCache, mds.ErrorKindUnknownCacheValueName,
		mds.ErrorKindUnknownCollection, mds.ErrorKindUnknownIndex,
		mds.ErrorKindUnknownSelector:
		return http.StatusNotFound
	case mds.ErrorKindMismatchedAssociationTypes, mds.ErrorKindIllegalInBatch:
		return http.StatusConflict
	case mds.ErrorKindWrongValueType:
		return http.StatusBadRequest
	case mds.ErrorKindBackendIO, mds.ErrorKindSerializationFailure:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
