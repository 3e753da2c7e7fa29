// Package http serves the tracker's JSON API.
//
// This file holds the fluent JSON response builder, the JSON views of the
// domain types and the mapping from service errors to status codes.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"moneytrack/internal/analytics"
	"moneytrack/internal/core"
	"moneytrack/internal/extract"
	"moneytrack/internal/log"
	"moneytrack/internal/services"
	"moneytrack/internal/storage"
)

// JSONResponseBuilder provides a fluent API for JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a builder with a 200 status and no body.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Error sets the {"error": message} body.
func (b *JSONResponseBuilder) Error(message string) *JSONResponseBuilder {
	b.body = errorBody{Error: message}
	return b
}

// Write sends the response. A 204 or a nil body writes no content.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil || b.statusCode == http.StatusNoContent {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

type errorBody struct {
	Error string `json:"error"`
}

// ErrorResponse is a shortcut for an error status with a message body.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Error(message)
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func UnprocessableEntityError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func InternalServerError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "internal server error")
}

// errorStatus maps a service error to its HTTP status. ErrInvalidRange is
// also an ErrInvalid, so it is checked first.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, analytics.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrConflict), errors.Is(err, storage.ErrCategoryInUse):
		return http.StatusConflict
	case errors.Is(err, services.ErrInvalid):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError answers with the status of err. resource names the
// entity in 404 and 409 messages. Internal errors are logged and hidden.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, resource, operation string) {
	status := errorStatus(err)
	var msg string
	switch status {
	case http.StatusNotFound:
		msg = resource + " not found"
	case http.StatusConflict:
		if errors.Is(err, storage.ErrCategoryInUse) {
			msg = "cannot delete category: it is used by existing expenses"
		} else {
			msg = resource + " with this name already exists"
		}
	case http.StatusInternalServerError:
		log.NewStructuredLogger(log.FromContext(r.Context())).
			LogError(r.Context(), "Request failed", err, log.ComponentHTTP, operation,
				log.NewFields().WithUser(userFromContext(r.Context())))
		InternalServerError().Write(w)
		return
	default:
		msg = err.Error()
	}
	ErrorResponse(status, msg).Write(w)
}

type (
	expenseView struct {
		ID          string     `json:"_id"`
		UserID      string     `json:"user_id"`
		Merchant    string     `json:"merchant"`
		Amount      float64    `json:"amount"`
		Category    string     `json:"category"`
		Date        time.Time  `json:"date"`
		Description *string    `json:"description"`
		Source      string     `json:"source"`
		CreatedAt   time.Time  `json:"created_at"`
		UpdatedAt   *time.Time `json:"updated_at"`
	}

	categoryView struct {
		ID        string    `json:"_id"`
		UserID    string    `json:"user_id"`
		Name      string    `json:"name"`
		Color     string    `json:"color"`
		Icon      string    `json:"icon"`
		Count     int64     `json:"count"`
		CreatedAt time.Time `json:"created_at"`
	}

	parsedView struct {
		Merchant    *string   `json:"merchant"`
		Amount      *float64  `json:"amount"`
		Category    *string   `json:"category"`
		Date        time.Time `json:"date"`
		Description *string   `json:"description"`
		Confidence  float64   `json:"confidence"`
	}
)

func newExpenseView(e core.Expense) expenseView {
	v := expenseView{
		ID:        e.ID,
		UserID:    e.UserID,
		Merchant:  e.Merchant,
		Amount:    e.Amount.InexactFloat64(),
		Category:  e.Category,
		Date:      e.Date,
		Source:    e.Source.String(),
		CreatedAt: e.CreatedAt,
	}
	if strings.TrimSpace(e.Description) != "" {
		desc := e.Description
		v.Description = &desc
	}
	if !e.UpdatedAt.IsZero() {
		updated := e.UpdatedAt
		v.UpdatedAt = &updated
	}
	return v
}

func newExpenseViews(es []core.Expense) []expenseView {
	out := make([]expenseView, 0, len(es))
	for _, e := range es {
		out = append(out, newExpenseView(e))
	}
	return out
}

func newCategoryView(c core.Category) categoryView {
	return categoryView{
		ID:        c.ID,
		UserID:    c.UserID,
		Name:      c.Name,
		Color:     c.Color,
		Icon:      c.Icon,
		Count:     c.Count,
		CreatedAt: c.CreatedAt,
	}
}

func newCategoryViews(cs []core.Category) []categoryView {
	out := make([]categoryView, 0, len(cs))
	for _, c := range cs {
		out = append(out, newCategoryView(c))
	}
	return out
}

func newParsedView(res extract.Result) parsedView {
	v := parsedView{
		Merchant:    res.Merchant,
		Category:    res.Category,
		Date:        res.Date,
		Description: res.Description,
		Confidence:  res.Confidence,
	}
	if res.Amount != nil {
		amount := res.Amount.InexactFloat64()
		v.Amount = &amount
	}
	return v
}
