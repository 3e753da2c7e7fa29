package http

import (
	"net/http"

	"moneytrack/internal/log"
)

// handleExpenseStats serves the dashboard figures for ?range=7days|30days|
// 90days|year. A missing range means 7days.
func (s *Server) handleExpenseStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.expenses.Stats(r.Context(), userFromContext(r.Context()), r.URL.Query().Get("range"))
	if err != nil {
		writeServiceError(w, r, err, resourceExpense, log.OpStats)
		return
	}
	NewJSONResponse().Body(stats).Write(w)
}
