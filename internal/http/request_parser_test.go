package http

import (
	"errors"
	"net/url"
	"testing"

	"bookkeeper/internal/analysis"
	"bookkeeper/internal/services"
)

func TestParseHousehold(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    analysis.Household
		wantErr bool
	}{
		{"empty", "", analysis.Household{}, false},
		{"all set", "dependents=2&children=1&elderly=1", analysis.Household{Dependents: 2, Children: 1, Elderly: 1}, false},
		{"whitespace", "children=%201%20", analysis.Household{Children: 1}, false},
		{"negative", "dependents=-1", analysis.Household{}, true},
		{"not a number", "elderly=two", analysis.Household{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			if err != nil {
				t.Fatalf("parse query: %v", err)
			}
			got, err := ParseHousehold(q)
			if tt.wantErr {
				if !errors.Is(err, services.ErrInvalidRequest) {
					t.Fatalf("expected ErrInvalidRequest, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCleanFileName(t *testing.T) {
	tests := map[string]string{
		"ledger.txt":           "ledger.txt",
		"  books.csv ":         "books.csv",
		"../../etc/passwd.txt": "passwd.txt",
		`C:\Users\me\2024.txt`: "2024.txt",
		"":                     "",
		"/":                    "",
		"dir/\x00hidden.csv":   "hidden.csv",
	}
	for in, want := range tests {
		if got := cleanFileName(in); got != want {
			t.Errorf("cleanFileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseFeedbackID(t *testing.T) {
	if id, err := parseFeedbackID("42"); err != nil || id != 42 {
		t.Fatalf("got %d, %v", id, err)
	}
	for _, raw := range []string{"", "0", "-3", "abc", "1.5"} {
		if _, err := parseFeedbackID(raw); !errors.Is(err, services.ErrInvalidRequest) {
			t.Errorf("parseFeedbackID(%q) error = %v", raw, err)
		}
	}
}

func TestSanitizeInput(t *testing.T) {
	if got := sanitizeInput("  a\x01b\tc\n "); got != "ab\tc" {
		t.Fatalf("got %q", got)
	}
}
