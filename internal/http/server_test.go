package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"moneytrack/internal/analytics"
	"moneytrack/internal/cache"
	"moneytrack/internal/middleware/ratelimit"
	"moneytrack/internal/services"
	"moneytrack/internal/storage/memory"
)

var testNow = time.Date(2025, 3, 20, 15, 0, 0, 0, time.UTC)

const testUser = "user-1"

func newTestServer(t *testing.T, mutate ...func(*Options)) *Server {
	t.Helper()
	store := memory.New()
	seq := 0
	cfg := services.Config{
		StatsCache: cache.NewLRUCache[analytics.Stats](16, time.Minute),
		Clock:      func() time.Time { return testNow },
		NewID: func() string {
			seq++
			return fmt.Sprintf("id-%03d", seq)
		},
	}
	cats := services.NewCategoryService(store, cfg)
	opts := Options{
		Expenses:   services.NewExpenseService(store, cats, cfg),
		Categories: cats,
		Ready:      store.Ping,
		RateLimit:  ratelimit.Config{RPS: 1000, Burst: 1000},
	}
	for _, m := range mutate {
		m(&opts)
	}
	srv, err := NewServer(":0", opts)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

// do sends body (nil, string or any JSON-encodable value) as the given user.
func do(t *testing.T, srv *Server, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(UserIDHeader, user)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d, body %s", rr.Code, want, rr.Body.String())
	}
}

func TestNewServer_RequiresServices(t *testing.T) {
	if _, err := NewServer(":0", Options{}); err == nil {
		t.Fatal("expected error without services")
	}
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodGet, "/healthz", "", nil)
	expectStatus(t, rr, http.StatusOK)
	if decode[map[string]any](t, rr)["status"] != "ok" {
		t.Errorf("health body %s", rr.Body.String())
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" || rr.Header().Get("X-Request-ID") == "" {
		t.Errorf("missing security or trace headers: %v", rr.Header())
	}

	expectStatus(t, do(t, srv, http.MethodGet, "/readyz", "", nil), http.StatusOK)

	down := newTestServer(t, func(o *Options) {
		o.Ready = func(context.Context) error { return errors.New("database unreachable") }
	})
	rr = do(t, down, http.MethodGet, "/readyz", "", nil)
	expectStatus(t, rr, http.StatusServiceUnavailable)
	if decode[map[string]string](t, rr)["status"] != "not_ready" {
		t.Errorf("ready body %s", rr.Body.String())
	}
}

func TestAPI_RequiresUser(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodGet, "/api/expenses", "", nil)
	expectStatus(t, rr, http.StatusUnauthorized)
	if !strings.Contains(decode[map[string]string](t, rr)["error"], UserIDHeader) {
		t.Errorf("error body %s", rr.Body.String())
	}

	expectStatus(t, do(t, srv, http.MethodGet, "/api/expenses", strings.Repeat("u", 200), nil), http.StatusBadRequest)
	expectStatus(t, do(t, srv, http.MethodGet, "/nope", testUser, nil), http.StatusNotFound)
}

func TestCategories_CRUD(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodGet, "/api/categories", testUser, nil)
	expectStatus(t, rr, http.StatusOK)
	seeded := decode[[]categoryView](t, rr)
	if len(seeded) != 8 || seeded[0].Name != "Bills & Utilities" {
		t.Fatalf("unexpected seeded categories %+v", seeded)
	}

	rr = do(t, srv, http.MethodPost, "/api/categories", testUser, map[string]string{"name": "Pets", "color": "#123abc"})
	expectStatus(t, rr, http.StatusCreated)
	pets := decode[categoryView](t, rr)
	if pets.ID == "" || pets.Icon != "📦" || pets.UserID != testUser {
		t.Fatalf("unexpected category %+v", pets)
	}
	if rr.Header().Get("Location") != "/api/categories/"+pets.ID {
		t.Errorf("Location = %q", rr.Header().Get("Location"))
	}

	expectStatus(t, do(t, srv, http.MethodPost, "/api/categories", testUser, map[string]string{"name": "Pets"}), http.StatusConflict)
	expectStatus(t, do(t, srv, http.MethodPost, "/api/categories", testUser, map[string]string{"name": "X", "color": "red"}), http.StatusUnprocessableEntity)

	rr = do(t, srv, http.MethodPut, "/api/categories/"+pets.ID, testUser, map[string]string{"name": "Animals"})
	expectStatus(t, rr, http.StatusOK)
	if got := decode[categoryView](t, rr); got.Name != "Animals" || got.Color != "#123abc" {
		t.Fatalf("unexpected update %+v", got)
	}

	// Another user cannot see it.
	expectStatus(t, do(t, srv, http.MethodGet, "/api/categories/"+pets.ID, "user-2", nil), http.StatusNotFound)

	expectStatus(t, do(t, srv, http.MethodDelete, "/api/categories/"+pets.ID, testUser, nil), http.StatusNoContent)
	rr = do(t, srv, http.MethodGet, "/api/categories/"+pets.ID, testUser, nil)
	expectStatus(t, rr, http.StatusNotFound)
	if decode[map[string]string](t, rr)["error"] != "Category not found" {
		t.Errorf("error body %s", rr.Body.String())
	}
}

func categoryCount(t *testing.T, srv *Server, name string) int64 {
	t.Helper()
	rr := do(t, srv, http.MethodGet, "/api/categories", testUser, nil)
	expectStatus(t, rr, http.StatusOK)
	for _, c := range decode[[]categoryView](t, rr) {
		if c.Name == name {
			return c.Count
		}
	}
	t.Fatalf("category %q not found", name)
	return 0
}

func TestExpenses_Lifecycle(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodPost, "/api/expenses", testUser, `{
		"merchant": "Corner Cafe",
		"amount": 12.5,
		"category": "Food & Dining",
		"date": "2025-03-14",
		"description": "flat white"
	}`)
	expectStatus(t, rr, http.StatusCreated)
	created := decode[expenseView](t, rr)
	if created.ID == "" || created.Amount != 12.5 || created.Source != "manual" || created.UpdatedAt != nil {
		t.Fatalf("unexpected expense %+v", created)
	}
	if categoryCount(t, srv, "Food & Dining") != 1 {
		t.Fatal("category count not incremented")
	}

	rr = do(t, srv, http.MethodGet, "/api/expenses", testUser, nil)
	expectStatus(t, rr, http.StatusOK)
	if list := decode[[]expenseView](t, rr); len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("unexpected list %+v", list)
	}

	rr = do(t, srv, http.MethodPut, "/api/expenses/"+created.ID, testUser, map[string]any{"amount": 20, "category": "Shopping"})
	expectStatus(t, rr, http.StatusOK)
	updated := decode[expenseView](t, rr)
	if updated.Amount != 20 || updated.Category != "Shopping" || updated.Merchant != "Corner Cafe" || updated.UpdatedAt == nil {
		t.Fatalf("unexpected update %+v", updated)
	}
	if categoryCount(t, srv, "Food & Dining") != 0 || categoryCount(t, srv, "Shopping") != 1 {
		t.Fatal("counts not moved to the new category")
	}

	shopping := ""
	for _, c := range decode[[]categoryView](t, do(t, srv, http.MethodGet, "/api/categories", testUser, nil)) {
		if c.Name == "Shopping" {
			shopping = c.ID
		}
	}
	rr = do(t, srv, http.MethodDelete, "/api/categories/"+shopping, testUser, nil)
	expectStatus(t, rr, http.StatusConflict)

	expectStatus(t, do(t, srv, http.MethodGet, "/api/expenses/"+created.ID, "user-2", nil), http.StatusNotFound)
	expectStatus(t, do(t, srv, http.MethodDelete, "/api/expenses/"+created.ID, testUser, nil), http.StatusNoContent)
	expectStatus(t, do(t, srv, http.MethodGet, "/api/expenses/"+created.ID, testUser, nil), http.StatusNotFound)
	expectStatus(t, do(t, srv, http.MethodDelete, "/api/expenses/"+created.ID, testUser, nil), http.StatusNotFound)
	if categoryCount(t, srv, "Shopping") != 0 {
		t.Fatal("category count not decremented")
	}
}

func TestRecountCategories(t *testing.T) {
	srv := newTestServer(t)

	for _, amount := range []string{"5", "7"} {
		body := map[string]any{"merchant": "Metro", "amount": amount, "category": "Transportation", "date": "2025-03-10"}
		expectStatus(t, do(t, srv, http.MethodPost, "/api/expenses", testUser, body), http.StatusCreated)
	}

	rr := do(t, srv, http.MethodPost, "/api/categories/recount", testUser, nil)
	expectStatus(t, rr, http.StatusOK)
	for _, c := range decode[[]categoryView](t, rr) {
		want := int64(0)
		if c.Name == "Transportation" {
			want = 2
		}
		if c.Count != want {
			t.Errorf("%s count = %d, want %d", c.Name, c.Count, want)
		}
	}
}

func TestCreateExpense_Errors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"merchant":`, http.StatusBadRequest},
		{"empty body", ``, http.StatusBadRequest},
		{"unknown field", `{"merchant":"A","amount":1,"category":"Travel","date":"2025-03-01","tip":2}`, http.StatusBadRequest},
		{"bad date", `{"merchant":"A","amount":1,"category":"Travel","date":"yesterday"}`, http.StatusBadRequest},
		{"missing amount", `{"merchant":"A","category":"Travel","date":"2025-03-01"}`, http.StatusUnprocessableEntity},
		{"negative amount", `{"merchant":"A","amount":-3,"category":"Travel","date":"2025-03-01"}`, http.StatusUnprocessableEntity},
		{"blank merchant", `{"merchant":"   ","amount":3,"category":"Travel","date":"2025-03-01"}`, http.StatusUnprocessableEntity},
		{"unknown source", `{"merchant":"A","amount":3,"category":"Travel","date":"2025-03-01","source":"fax"}`, http.StatusUnprocessableEntity},
		{"long merchant", `{"merchant":"` + strings.Repeat("m", 201) + `","amount":3,"category":"Travel","date":"2025-03-01"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, "/api/expenses", testUser, tt.body)
			expectStatus(t, rr, tt.want)
			if decode[map[string]string](t, rr)["error"] == "" {
				t.Errorf("missing error message: %s", rr.Body.String())
			}
		})
	}
}

func TestListExpenses_Filters(t *testing.T) {
	srv := newTestServer(t)

	for _, body := range []string{
		`{"merchant":"Uber","amount":9,"category":"Transportation","date":"2025-03-10","source":"sms"}`,
		`{"merchant":"Cinema City","amount":15,"category":"Entertainment","date":"2025-03-12","description":"Dune"}`,
		`{"merchant":"Corner Cafe","amount":4,"category":"Food & Dining","date":"2025-03-15T08:30:00Z"}`,
	} {
		expectStatus(t, do(t, srv, http.MethodPost, "/api/expenses", testUser, body), http.StatusCreated)
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"Corner Cafe", "Cinema City", "Uber"}},
		{"?source=sms", []string{"Uber"}},
		{"?category=all&source=all", []string{"Corner Cafe", "Cinema City", "Uber"}},
		{"?search=dune", []string{"Cinema City"}},
		{"?start_date=2025-03-11&end_date=2025-03-12", []string{"Cinema City"}},
		{"?skip=1&limit=1", []string{"Cinema City"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := do(t, srv, http.MethodGet, "/api/expenses"+tt.query, testUser, nil)
			expectStatus(t, rr, http.StatusOK)
			list := decode[[]expenseView](t, rr)
			if len(list) != len(tt.want) {
				t.Fatalf("got %d expenses, want %v", len(list), tt.want)
			}
			for i, e := range list {
				if e.Merchant != tt.want[i] {
					t.Errorf("position %d: %q, want %q", i, e.Merchant, tt.want[i])
				}
			}
		})
	}

	for _, q := range []string{"?limit=abc", "?skip=-1", "?source=fax", "?start_date=soon"} {
		expectStatus(t, do(t, srv, http.MethodGet, "/api/expenses"+q, testUser, nil), http.StatusBadRequest)
	}
	expectStatus(t, do(t, srv, http.MethodGet, "/api/expenses?start_date=2025-03-12&end_date=2025-03-01", testUser, nil), http.StatusUnprocessableEntity)
}

func TestExpenseStats(t *testing.T) {
	srv := newTestServer(t)
	expectStatus(t, do(t, srv, http.MethodPost, "/api/expenses", testUser,
		`{"merchant":"Corner Cafe","amount":40,"category":"Food & Dining","date":"2025-03-19"}`), http.StatusCreated)

	rr := do(t, srv, http.MethodGet, "/api/expenses/stats", testUser, nil)
	expectStatus(t, rr, http.StatusOK)
	stats := decode[analytics.Stats](t, rr)
	if stats.TotalExpenses != 40 || stats.TransactionCount != 1 || len(stats.Trend) != 7 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if len(stats.CategoryBreakdown) != 1 || stats.CategoryBreakdown[0].Color != "#0ea5e9" {
		t.Errorf("unexpected breakdown %+v", stats.CategoryBreakdown)
	}

	rr = do(t, srv, http.MethodGet, "/api/expenses/stats?range=forever", testUser, nil)
	expectStatus(t, rr, http.StatusBadRequest)
}

func TestParseSMS(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodPost, "/api/parse/sms", testUser, map[string]string{"text": "Spent Rs.500 at Starbucks on 12/12/2024"})
	expectStatus(t, rr, http.StatusOK)
	got := decode[parsedView](t, rr)
	if got.Amount == nil || *got.Amount != 500 || got.Merchant == nil || *got.Merchant != "Starbucks" {
		t.Fatalf("unexpected draft %+v", got)
	}
	if got.Category == nil || *got.Category != "Food & Dining" || got.Confidence != 1 {
		t.Fatalf("unexpected draft %+v", got)
	}

	expectStatus(t, do(t, srv, http.MethodPost, "/api/parse/sms", testUser, map[string]string{"text": ""}), http.StatusUnprocessableEntity)

	// Parsing stores nothing.
	rr = do(t, srv, http.MethodGet, "/api/expenses", testUser, nil)
	if list := decode[[]expenseView](t, rr); len(list) != 0 {
		t.Fatalf("parse created expenses: %+v", list)
	}
}

func uploadRequest(t *testing.T, path, filename, contentType string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	_, _ = part.Write([]byte("binary"))
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(UserIDHeader, testUser)
	return req
}

func TestParseUploads(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name         string
		path         string
		filename     string
		contentType  string
		wantStatus   int
		wantMerchant string
	}{
		{"receipt image", "/api/parse/receipt", "lunch.jpg", "image/jpeg", http.StatusOK, "Receipt Upload"},
		{"receipt not image", "/api/parse/receipt", "notes.txt", "text/plain", http.StatusBadRequest, ""},
		{"voice audio", "/api/parse/voice", "memo.m4a", "audio/mp4", http.StatusOK, "Voice Entry"},
		{"voice not audio", "/api/parse/voice", "lunch.jpg", "image/jpeg", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			srv.Handler.ServeHTTP(rr, uploadRequest(t, tt.path, tt.filename, tt.contentType))
			expectStatus(t, rr, tt.wantStatus)
			if tt.wantStatus != http.StatusOK {
				return
			}
			got := decode[parsedView](t, rr)
			if got.Merchant == nil || *got.Merchant != tt.wantMerchant || got.Confidence != 0.5 {
				t.Fatalf("unexpected draft %+v", got)
			}
			if got.Amount == nil || *got.Amount != 0 {
				t.Errorf("placeholder amount = %v", got.Amount)
			}
		})
	}

	// No file part at all.
	expectStatus(t, do(t, srv, http.MethodPost, "/api/parse/receipt", testUser, `{}`), http.StatusBadRequest)
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, func(o *Options) {
		o.RateLimit = ratelimit.Config{RPS: 0.001, Burst: 2}
	})

	for i := 0; i < 2; i++ {
		expectStatus(t, do(t, srv, http.MethodGet, "/api/categories", testUser, nil), http.StatusOK)
	}
	rr := do(t, srv, http.MethodGet, "/api/categories", testUser, nil)
	expectStatus(t, rr, http.StatusTooManyRequests)
	if rr.Header().Get("Retry-After") == "" || decode[map[string]string](t, rr)["error"] == "" {
		t.Errorf("unexpected 429 response: %v %s", rr.Header(), rr.Body.String())
	}

	// Health checks are not limited.
	expectStatus(t, do(t, srv, http.MethodGet, "/healthz", "", nil), http.StatusOK)
}
