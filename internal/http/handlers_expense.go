package http

import (
	"fmt"
	"net/http"

	"moneytrack/internal/log"
	"moneytrack/internal/services"
)

const resourceExpense = "Expense"

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	f, err := ParseExpenseFilter(r.URL.Query())
	if err != nil {
		writeServiceError(w, r, err, resourceExpense, log.OpList)
		return
	}
	expenses, err := s.expenses.List(r.Context(), userFromContext(r.Context()), f)
	if err != nil {
		writeServiceError(w, r, err, resourceExpense, log.OpList)
		return
	}
	NewJSONResponse().Body(newExpenseViews(expenses)).Write(w)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	e, err := s.expenses.Get(r.Context(), userFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err, resourceExpense, log.OpRead)
		return
	}
	NewJSONResponse().Body(newExpenseView(e)).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if err := s.parser.DecodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err, resourceExpense, log.OpCreate)
		return
	}
	e, err := req.toExpense(userFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, fmt.Errorf("%w: %w", services.ErrInvalid, err), resourceExpense, log.OpCreate)
		return
	}
	created, err := s.expenses.Create(r.Context(), e)
	if err != nil {
		writeServiceError(w, r, err, resourceExpense, log.OpCreate)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).
		Header("Location", "/api/expenses/"+created.ID).
		Body(newExpenseView(created)).
		Write(w)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	var req updateExpenseRequest
	if err := s.parser.DecodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err, resourceExpense, log.OpUpdate)
		return
	}
	updated, err := s.expenses.Update(r.Context(), userFromContext(r.Context()), r.PathValue("id"), req.toPatch())
	if err != nil {
		writeServiceError(w, r, err, resourceExpense, log.OpUpdate)
		return
	}
	NewJSONResponse().Body(newExpenseView(updated)).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.expenses.Delete(r.Context(), userFromContext(r.Context()), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err, resourceExpense, log.OpDelete)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
