package http

import (
	"net/http"

	"moneytrack/internal/extract"
	"moneytrack/internal/log"
)

const resourceDraft = "Draft"

// handleParseSMS extracts an expense draft from pasted notification text.
// Nothing is stored.
func (s *Server) handleParseSMS(w http.ResponseWriter, r *http.Request) {
	var req parseTextRequest
	if err := s.parser.DecodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err, resourceDraft, log.OpParse)
		return
	}
	res, err := s.expenses.ParseText(r.Context(), userFromContext(r.Context()), req.Text)
	if err != nil {
		writeServiceError(w, r, err, resourceDraft, log.OpParse)
		return
	}
	NewJSONResponse().Body(newParsedView(res)).Write(w)
}

func (s *Server) handleParseReceipt(w http.ResponseWriter, r *http.Request) {
	s.parseUpload(w, r, extract.KindReceipt, "image/")
}

func (s *Server) handleParseVoice(w http.ResponseWriter, r *http.Request) {
	s.parseUpload(w, r, extract.KindVoice, "audio/")
}

func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request, kind extract.Kind, wantType string) {
	header, err := ParseUpload(w, r, wantType)
	if err != nil {
		writeServiceError(w, r, err, resourceDraft, log.OpParse)
		return
	}
	res, err := s.expenses.ParseUpload(r.Context(), userFromContext(r.Context()), kind, sanitizeInput(header.Filename))
	if err != nil {
		writeServiceError(w, r, err, resourceDraft, log.OpParse)
		return
	}
	NewJSONResponse().Body(newParsedView(res)).Write(w)
}
