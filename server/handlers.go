package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/StevoGTA/Mini-Document-Storage-sub000/mds"
	"github.com/StevoGTA/Mini-Document-Storage-sub000/value"
)

func pathVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// documentView is the JSON-facing projection of mds.DocumentView.
type documentView struct {
	Type             string           `json:"type"`
	ID               string           `json:"id"`
	Revision         uint64           `json:"revision"`
	Active           bool             `json:"active"`
	CreationTime     int64            `json:"creationTime"`
	ModificationTime int64            `json:"modificationTime"`
	Properties       value.Dictionary `json:"properties"`
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	docType, id := pathVar(r, "type"), pathVar(r, "id")
	doc, err := s.store.GetDocument(r.Context(), docType, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, documentView{
		Type: doc.Type, ID: doc.ID, Revision: doc.Revision, Active: doc.Active,
		CreationTime: doc.CreationTime, ModificationTime: doc.ModificationTime,
		Properties: doc.Properties,
	})
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	docType := pathVar(r, "type")

	var body struct {
		ID         string           `json:"id"`
		Properties value.Dictionary `json:"properties"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	id, err := s.store.CreateDocument(r.Context(), docType, body.ID, body.Properties)
	if err != nil {
		writeErr(w, err)
		return
	}
	doc, err := s.store.GetDocument(r.Context(), docType, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, documentView{
		Type: doc.Type, ID: doc.ID, Revision: doc.Revision, Active: doc.Active,
		CreationTime: doc.CreationTime, ModificationTime: doc.ModificationTime,
		Properties: doc.Properties,
	})
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	docType, id := pathVar(r, "type"), pathVar(r, "id")

	var body struct {
		Updated value.Dictionary `json:"updated"`
		Removed []string         `json:"removed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := s.store.UpdateDocument(r.Context(), docType, id, body.Updated, body.Removed); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleRemoveDocument(w http.ResponseWriter, r *http.Request) {
	docType, id := pathVar(r, "type"), pathVar(r, "id")
	if err := s.store.RemoveDocument(r.Context(), docType, id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleDocumentCount(w http.ResponseWriter, r *http.Request) {
	docType := pathVar(r, "type")
	n, err := s.store.DocumentCount(r.Context(), docType, r.URL.Query().Get("activeOnly") != "0")
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (s *Server) handleAttachmentAdd(w http.ResponseWriter, r *http.Request) {
	docType, id := pathVar(r, "type"), pathVar(r, "id")

	var body struct {
		Info    map[string]string `json:"info"`
		Content []byte            `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	attID, err := s.store.AttachmentAdd(r.Context(), docType, id, body.Info, body.Content)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"attachmentID": attID})
}

func (s *Server) handleAttachmentContent(w http.ResponseWriter, r *http.Request) {
	docType, id, attID := pathVar(r, "type"), pathVar(r, "id"), pathVar(r, "attachmentID")
	content, err := s.store.AttachmentContent(r.Context(), docType, id, attID)
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

func (s *Server) handleAttachmentUpdate(w http.ResponseWriter, r *http.Request) {
	docType, id, attID := pathVar(r, "type"), pathVar(r, "id"), pathVar(r, "attachmentID")

	var body struct {
		Info    map[string]string `json:"info"`
		Content []byte            `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	rev, err := s.store.AttachmentUpdate(r.Context(), docType, id, attID, body.Info, body.Content)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"revision": rev})
}

func (s *Server) handleAttachmentRemove(w http.ResponseWriter, r *http.Request) {
	docType, id, attID := pathVar(r, "type"), pathVar(r, "id"), pathVar(r, "attachmentID")
	if err := s.store.AttachmentRemove(r.Context(), docType, id, attID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// handleAssociationFrom serves the toIDs associated from anchor id. The
// ?info= query parameter selects the shape: "ids" (default) for bare
// strings, "revision" for {docID, revision} pairs, "full" for full document
// views.
func (s *Server) handleAssociationFrom(w http.ResponseWriter, r *http.Request) {
	name, id := pathVar(r, "name"), pathVar(r, "id")
	start, count := queryInt(r, "start", 0), queryInt(r, "count", 0)

	switch r.URL.Query().Get("info") {
	case "revision":
		total, infos, err := s.store.AssociationRevisionInfosFrom(r.Context(), name, id, start, count)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"totalCount": total, "documents": infos})
	case "full":
		total, views, err := s.store.AssociationFullInfosFrom(r.Context(), name, id, start, count)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"totalCount": total, "documents": views})
	default:
		total, toIDs, err := s.store.AssociationFrom(r.Context(), name, id, start, count)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"totalCount": total, "ids": toIDs})
	}
}

// handleAssociationTo is handleAssociationFrom's mirror over fromIDs.
func (s *Server) handleAssociationTo(w http.ResponseWriter, r *http.Request) {
	name, id := pathVar(r, "name"), pathVar(r, "id")
	start, count := queryInt(r, "start", 0), queryInt(r, "count", 0)

	switch r.URL.Query().Get("info") {
	case "revision":
		total, infos, err := s.store.AssociationRevisionInfosTo(r.Context(), name, id, start, count)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"totalCount": total, "documents": infos})
	case "full":
		total, views, err := s.store.AssociationFullInfosTo(r.Context(), name, id, start, count)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"totalCount": total, "documents": views})
	default:
		total, fromIDs, err := s.store.AssociationTo(r.Context(), name, id, start, count)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"totalCount": total, "ids": fromIDs})
	}
}

func (s *Server) handleAssociationUpdate(w http.ResponseWriter, r *http.Request) {
	name := pathVar(r, "name")

	var body struct {
		Updates []struct {
			Action string `json:"action"`
			FromID string `json:"fromID"`
			ToID   string `json:"toID"`
		} `json:"updates"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var adds, removes []mds.AssociationItem
	for _, u := range body.Updates {
		item := mds.AssociationItem{FromID: u.FromID, ToID: u.ToID}
		if u.Action == "remove" {
			removes = append(removes, item)
		} else {
			adds = append(adds, item)
		}
	}
	if err := s.store.AssociationUpdate(r.Context(), name, adds, removes); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleCollectionDocumentIDs(w http.ResponseWriter, r *http.Request) {
	name, docType := pathVar(r, "name"), pathVar(r, "type")
	ids, err := s.store.CollectionDocumentIDs(r.Context(), name, docType)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"ids": ids})
}

func (s *Server) handleIndexLookup(w http.ResponseWriter, r *http.Request) {
	name, docType := pathVar(r, "name"), pathVar(r, "type")
	keys := r.URL.Query()["key"]
	byKey, err := s.store.IndexLookup(r.Context(), name, docType, keys)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, byKey)
}
