package http

import (
	"context"
	"net/http"

	"konto/internal/categories"
	"konto/internal/core"
	"konto/internal/log"
)

// syncCategories reloads the registry when a worker may have written to
// it from another process. A failed reload serves the current state.
func (s *Server) syncCategories(ctx context.Context) {
	if s.svc.Queue == nil {
		return
	}
	if err := s.svc.Categories.Load(ctx); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Failed to reload categories", log.FieldError, err)
	}
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	s.syncCategories(r.Context())
	cats := s.svc.Categories.Categories()
	if cats == nil {
		cats = []core.Category{}
	}
	writeJSON(w, http.StatusOK, cats)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var in categories.NewCategory
	if err := decodeJSON(w, r, &in); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	cat, err := s.svc.Categories.Create(r.Context(), in.Name, in.Color)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cat)
}

func (s *Server) handleBulkCreateCategories(w http.ResponseWriter, r *http.Request) {
	var in []categories.NewCategory
	if err := decodeJSON(w, r, &in); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	created, err := s.svc.Categories.BulkCreate(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if created == nil {
		created = []core.Category{}
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var u categories.CategoryUpdate
	if err := decodeJSON(w, r, &u); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	cat, ok, err := s.svc.Categories.Update(r.Context(), r.PathValue("id"), u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, core.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, cat)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Categories.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	s.syncCategories(r.Context())
	writeJSON(w, http.StatusOK, s.svc.Categories.Assignments())
}

// handleAssign sets one assignment. A null or empty categoryId removes it.
func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CategoryID *string `json:"categoryId"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	categoryID := ""
	if body.CategoryID != nil {
		categoryID = *body.CategoryID
	}
	txID := r.PathValue("txId")
	if err := s.svc.Categories.Assign(r.Context(), txID, categoryID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactionId": txID, "categoryId": body.CategoryID})
}

// handleBulkAssign applies a map of transaction identity to category id
// ("" removes) in one write.
func (s *Server) handleBulkAssign(w http.ResponseWriter, r *http.Request) {
	var changes map[string]string
	if err := decodeJSON(w, r, &changes); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	n, err := s.svc.Categories.BulkAssign(r.Context(), changes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"changed": n})
}

func (s *Server) handleResolveAssignment(w http.ResponseWriter, r *http.Request) {
	s.syncCategories(r.Context())
	cat, ok := s.svc.Categories.Resolve(r.PathValue("txId"))
	if !ok {
		writeError(w, r, core.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, cat)
}
