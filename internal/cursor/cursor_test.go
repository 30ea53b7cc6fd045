package cursor

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/lherron/crmq/internal/domain"
)

func TestCursorEncodeDecode(t *testing.T) {
	tests := []struct {
		name   string
		cursor *Cursor
	}{
		{
			name:   "plain page",
			cursor: &Cursor{Dataset: domain.DatasetUsers, Page: 3, Size: 10},
		},
		{
			name: "filters and search",
			cursor: &Cursor{
				Dataset: domain.DatasetApplications,
				Filters: domain.Filters{Country: "UAE", MissingDetails: domain.MissingDetailsYes, StartDate: "2026-01-01"},
				Search:  "jane",
				Page:    2,
				Size:    50,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := tt.cursor.Encode()
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if strings.ContainsAny(encoded, "+/=") {
				t.Errorf("cursor is not URL safe: %q", encoded)
			}
			decoded, err := Decode(encoded)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if diff := cmp.Diff(tt.cursor, decoded); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeInvalid(t *testing.T) {
	enc := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }
	tests := []struct {
		name    string
		encoded string
		wantErr string
	}{
		{"empty", "", "empty cursor"},
		{"not base64", "!!!", "invalid cursor encoding"},
		{"not json", enc("nope"), "invalid cursor format"},
		{"bad dataset", enc(`{"dataset":"x","page":1,"size":10}`), "invalid cursor"},
		{"page zero", enc(`{"dataset":"user-level","page":0,"size":10}`), "invalid page"},
		{"size too large", enc(`{"dataset":"user-level","page":1,"size":100000}`), "invalid page size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.encoded)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Decode(%q) error = %v, want containing %q", tt.encoded, err, tt.wantErr)
			}
		})
	}
}

func TestNext(t *testing.T) {
	c := &Cursor{Dataset: domain.DatasetUsers, Page: 1, Size: 10}

	next := c.Next(25)
	if next == nil || next.Page != 2 {
		t.Fatalf("Next(25) = %+v", next)
	}
	if c.Page != 1 {
		t.Error("Next modified the receiver")
	}
	if last := next.Next(25); last == nil || last.Page != 3 {
		t.Fatalf("page 3 expected, got %+v", last)
	}
	if end := (&Cursor{Dataset: domain.DatasetUsers, Page: 3, Size: 10}).Next(25); end != nil {
		t.Errorf("expected nil after the last page, got %+v", end)
	}
	if end := c.Next(10); end != nil {
		t.Errorf("expected nil when the first page holds everything, got %+v", end)
	}
}

func TestNextToken(t *testing.T) {
	f := domain.Filters{Assignee: "me@example.com"}
	tok, err := NextToken(domain.DatasetUsers, f, "", 1, 10, 11)
	if err != nil {
		t.Fatal(err)
	}
	c, err := Decode(tok)
	if err != nil {
		t.Fatal(err)
	}
	if c.Page != 2 || !c.Matches(domain.DatasetUsers, f, "") {
		t.Errorf("cursor = %+v", c)
	}
	if c.Matches(domain.DatasetUsers, domain.Filters{}, "") {
		t.Error("cursor should not match a different query")
	}

	tok, err = NextToken(domain.DatasetUsers, f, "", 2, 10, 11)
	if err != nil || tok != "" {
		t.Errorf("expected no token at the end, got %q, %v", tok, err)
	}
}
