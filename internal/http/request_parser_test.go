package http

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"moneytrack/internal/core"
	"moneytrack/internal/services"
	"moneytrack/internal/storage"
)

func TestParseTime(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2025-03-14", time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), false},
		{" 2025-03-14T09:30:00 ", time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC), false},
		{"2025-03-14T09:30", time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC), false},
		{"2025-03-14T10:30:00+01:00", time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC), false},
		{"14/03/2025", time.Time{}, true},
		{"", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTime(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseExpenseFilter(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    storage.ExpenseFilter
		wantErr bool
	}{
		{
			name:  "defaults",
			query: "",
			want:  storage.ExpenseFilter{Limit: storage.DefaultListLimit},
		},
		{
			name:  "all is no constraint",
			query: "category=all&source=all",
			want:  storage.ExpenseFilter{Limit: storage.DefaultListLimit},
		},
		{
			name:  "every field",
			query: "category=Travel&source=SMS&start_date=2025-03-01&end_date=2025-03-31&search=%20taxi%20&skip=5&limit=10",
			want: storage.ExpenseFilter{
				Category:  "Travel",
				Source:    core.SourceSMS,
				StartDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
				EndDate:   time.Date(2025, 3, 31, 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC),
				Search:    "taxi",
				Skip:      5,
				Limit:     10,
			},
		},
		{
			name:  "timestamp end date is exact",
			query: "end_date=2025-03-31T12:00:00Z",
			want: storage.ExpenseFilter{
				EndDate: time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC),
				Limit:   storage.DefaultListLimit,
			},
		},
		{name: "bad source", query: "source=cheque", wantErr: true},
		{name: "bad date", query: "start_date=march", wantErr: true},
		{name: "bad skip", query: "skip=x", wantErr: true},
		{name: "negative limit", query: "limit=-5", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			if err != nil {
				t.Fatal(err)
			}
			got, err := ParseExpenseFilter(q)
			if tt.wantErr {
				if !errors.Is(err, errBadRequest) {
					t.Fatalf("expected errBadRequest, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Category != tt.want.Category || got.Source != tt.want.Source || got.Search != tt.want.Search ||
				got.Skip != tt.want.Skip || got.Limit != tt.want.Limit ||
				!got.StartDate.Equal(tt.want.StartDate) || !got.EndDate.Equal(tt.want.EndDate) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRequestParser_Validate(t *testing.T) {
	p := NewRequestParser()

	if err := p.Validate(&createCategoryRequest{Name: "Pets", Color: "#aabbcc", Icon: "🐶"}); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	err := p.Validate(&createCategoryRequest{Name: "Pets", Color: "#abc"})
	if !errors.Is(err, services.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if err.Error() != "invalid input: field color failed len" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestCreateExpenseRequest_ToExpense(t *testing.T) {
	amount := mustDecimal(t, "12.345")
	req := createExpenseRequest{
		Merchant: "  Corner\x00 Cafe ",
		Amount:   &amount,
		Category: "Food & Dining",
		Date:     &flexTime{Time: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)},
	}

	e, err := req.toExpense(testUser)
	if err != nil {
		t.Fatal(err)
	}
	if e.Merchant != "Corner Cafe" || e.Source != core.SourceManual || e.UserID != testUser {
		t.Errorf("unexpected expense %+v", e)
	}

	req.Source = "Voice"
	if e, _ = req.toExpense(testUser); e.Source != core.SourceVoice {
		t.Errorf("source = %q", e.Source)
	}
	req.Source = "fax"
	if _, err := req.toExpense(testUser); !errors.Is(err, core.ErrInvalidSource) {
		t.Errorf("expected ErrInvalidSource, got %v", err)
	}
}
