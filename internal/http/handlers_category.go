package http

import (
	"net/http"

	"moneytrack/internal/log"
)

const resourceCategory = "Category"

// handleListCategories returns the user's categories by name, seeding the
// defaults on first use.
func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.categories.List(r.Context(), userFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err, resourceCategory, log.OpList)
		return
	}
	NewJSONResponse().Body(newCategoryViews(cats)).Write(w)
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	c, err := s.categories.Get(r.Context(), userFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err, resourceCategory, log.OpRead)
		return
	}
	NewJSONResponse().Body(newCategoryView(c)).Write(w)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := s.parser.DecodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err, resourceCategory, log.OpCreate)
		return
	}
	created, err := s.categories.Create(r.Context(), req.toCategory(userFromContext(r.Context())))
	if err != nil {
		writeServiceError(w, r, err, resourceCategory, log.OpCreate)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).
		Header("Location", "/api/categories/"+created.ID).
		Body(newCategoryView(created)).
		Write(w)
}

// handleUpdateCategory applies a partial update. Renaming moves the user's
// expenses to the new name.
func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req updateCategoryRequest
	if err := s.parser.DecodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err, resourceCategory, log.OpUpdate)
		return
	}
	updated, err := s.categories.Update(r.Context(), userFromContext(r.Context()), r.PathValue("id"), req.toPatch())
	if err != nil {
		writeServiceError(w, r, err, resourceCategory, log.OpUpdate)
		return
	}
	NewJSONResponse().Body(newCategoryView(updated)).Write(w)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.categories.Delete(r.Context(), userFromContext(r.Context()), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err, resourceCategory, log.OpDelete)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// handleRecountCategories rebuilds the counts from the stored expenses and
// returns the repaired list.
func (s *Server) handleRecountCategories(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())
	if err := s.categories.Recount(r.Context(), userID); err != nil {
		writeServiceError(w, r, err, resourceCategory, log.OpRecount)
		return
	}
	cats, err := s.categories.List(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err, resourceCategory, log.OpList)
		return
	}
	NewJSONResponse().Body(newCategoryViews(cats)).Write(w)
}
