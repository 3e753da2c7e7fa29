package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"moneytrack/internal/core"
	"moneytrack/internal/services"
	"moneytrack/internal/storage"
)

const (
	maxJSONBodySize = 1 << 20
	maxUploadSize   = 10 << 20
)

// errBadRequest marks request problems answered with 400.
var errBadRequest = errors.New("bad request")

// Request bodies. Tags are checked by go-playground/validator before the
// domain validation in core runs.
type (
	createExpenseRequest struct {
		Merchant    string           `json:"merchant" validate:"required,max=200"`
		Amount      *decimal.Decimal `json:"amount" validate:"required"`
		Category    string           `json:"category" validate:"required,max=50"`
		Date        *flexTime        `json:"date" validate:"required"`
		Description string           `json:"description" validate:"max=500"`
		Source      string           `json:"source" validate:"omitempty,oneof=manual sms receipt voice"`
	}

	updateExpenseRequest struct {
		Merchant    *string          `json:"merchant" validate:"omitempty,max=200"`
		Amount      *decimal.Decimal `json:"amount"`
		Category    *string          `json:"category" validate:"omitempty,max=50"`
		Date        *flexTime        `json:"date"`
		Description *string          `json:"description" validate:"omitempty,max=500"`
	}

	createCategoryRequest struct {
		Name  string `json:"name" validate:"required,max=50"`
		Color string `json:"color" validate:"omitempty,len=7,startswith=#"`
		Icon  string `json:"icon" validate:"omitempty,max=10"`
	}

	updateCategoryRequest struct {
		Name  *string `json:"name" validate:"omitempty,max=50"`
		Color *string `json:"color" validate:"omitempty,len=7,startswith=#"`
		Icon  *string `json:"icon" validate:"omitempty,max=10"`
	}

	parseTextRequest struct {
		Text string `json:"text" validate:"required,max=2000"`
	}
)

func (req createExpenseRequest) toExpense(userID string) (core.Expense, error) {
	e := core.Expense{
		UserID:      userID,
		Amount:      *req.Amount,
		Merchant:    sanitizeInput(req.Merchant),
		Category:    sanitizeInput(req.Category),
		Date:        req.Date.Time,
		Description: sanitizeInput(req.Description),
		Source:      core.SourceManual,
	}
	if req.Source != "" {
		src, err := core.ParseSource(req.Source)
		if err != nil {
			return core.Expense{}, err
		}
		e.Source = src
	}
	return e, nil
}

func (req updateExpenseRequest) toPatch() services.ExpensePatch {
	p := services.ExpensePatch{
		Amount:      req.Amount,
		Merchant:    sanitizePtr(req.Merchant),
		Category:    sanitizePtr(req.Category),
		Description: sanitizePtr(req.Description),
	}
	if req.Date != nil {
		d := req.Date.Time
		p.Date = &d
	}
	return p
}

func (req createCategoryRequest) toCategory(userID string) core.Category {
	return core.Category{
		UserID: userID,
		Name:   sanitizeInput(req.Name),
		Color:  strings.TrimSpace(req.Color),
		Icon:   strings.TrimSpace(req.Icon),
	}
}

func (req updateCategoryRequest) toPatch() services.CategoryPatch {
	return services.CategoryPatch{
		Name:  sanitizePtr(req.Name),
		Color: sanitizePtr(req.Color),
		Icon:  sanitizePtr(req.Icon),
	}
}

// flexTime accepts an RFC 3339 timestamp, a timestamp without zone (read as
// UTC) or a bare YYYY-MM-DD date.
type flexTime struct {
	time.Time
}

var flexLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04", dateLayout}

func (t *flexTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	parsed, err := parseTime(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range flexLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// RequestParser decodes and validates request input.
type RequestParser struct {
	validate *validator.Validate
}

func NewRequestParser() *RequestParser {
	return &RequestParser{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// DecodeJSON reads a single JSON object into dst and validates its tags.
// Syntax problems wrap errBadRequest; tag violations wrap
// services.ErrInvalid.
func (p *RequestParser) DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: malformed JSON: %v", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: body must contain a single JSON object", errBadRequest)
	}
	return p.Validate(dst)
}

// Validate runs the struct tags of v.
func (p *RequestParser) Validate(v any) error {
	err := p.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: field %s failed %s", services.ErrInvalid, jsonFieldName(fe.Field()), fe.Tag())
	}
	return fmt.Errorf("%w: %v", services.ErrInvalid, err)
}

func jsonFieldName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

// ParseExpenseFilter reads the list query. "all" for category or source
// means no constraint.
func ParseExpenseFilter(query url.Values) (storage.ExpenseFilter, error) {
	var f storage.ExpenseFilter

	if v := strings.TrimSpace(query.Get("category")); v != "" && v != "all" {
		f.Category = v
	}
	if v := strings.TrimSpace(query.Get("source")); v != "" && v != "all" {
		src, err := core.ParseSource(v)
		if err != nil {
			return f, fmt.Errorf("%w: %v", errBadRequest, err)
		}
		f.Source = src
	}
	for _, d := range []struct {
		key string
		dst *time.Time
	}{{"start_date", &f.StartDate}, {"end_date", &f.EndDate}} {
		v := strings.TrimSpace(query.Get(d.key))
		if v == "" {
			continue
		}
		t, err := parseTime(v)
		if err != nil {
			return f, fmt.Errorf("%w: %s: %v", errBadRequest, d.key, err)
		}
		*d.dst = t
	}
	// A bare end date covers the whole day.
	if v := strings.TrimSpace(query.Get("end_date")); len(v) == len(dateLayout) && !f.EndDate.IsZero() {
		f.EndDate = f.EndDate.Add(24*time.Hour - time.Nanosecond)
	}
	f.Search = sanitizeInput(query.Get("search"))

	var err error
	if f.Skip, err = queryInt(query, "skip", 0); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(query, "limit", storage.DefaultListLimit); err != nil {
		return f, err
	}
	return f, nil
}

func queryInt(query url.Values, key string, def int) (int, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errBadRequest, key)
	}
	return n, nil
}

// ParseUpload reads the multipart "file" field and checks that its content
// type starts with wantType (image/ or audio/).
func ParseUpload(w http.ResponseWriter, r *http.Request, wantType string) (*multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return nil, fmt.Errorf("%w: invalid multipart form: %v", errBadRequest, err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: missing file", errBadRequest)
	}
	_ = file.Close()

	if !strings.HasPrefix(strings.ToLower(header.Header.Get("Content-Type")), wantType) {
		return nil, fmt.Errorf("%w: file must be %s", errBadRequest, strings.TrimSuffix(wantType, "/"))
	}
	return header, nil
}
