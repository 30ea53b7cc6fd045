package parse

import (
	"reflect"
	"testing"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Format
		wantErr bool
	}{
		{name: "empty input defaults to markdown", input: "", want: FormatMarkdown},
		{name: "valid JSON object", input: `{"notes": "test"}`, want: FormatJSON},
		{name: "invalid JSON returns error", input: `{not valid json}`, wantErr: true},
		{name: "markdown with front matter", input: "---\ndisposition: CONNECTED_REQUESTED_CALLBACK\n---\nCall later", want: FormatMarkdown},
		{name: "YAML structure", input: "disposition: CONNECTED_REQUESTED_CALLBACK\nnotes: hi", want: FormatYAML},
		{name: "plain text defaults to markdown", input: "Spoke to the candidate", want: FormatMarkdown},
		{name: "whitespace only defaults to markdown", input: "   \n\n  ", want: FormatMarkdown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFormat([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("DetectFormat() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("DetectFormat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseJSON(t *testing.T) {
	act, err := Parse([]byte(`{
		"callDisposition": "CONNECTED_REQUESTED_CALLBACK",
		"notes": "call after 5",
		"nextCallDate": "2026-11-02",
		"targetCountry": "UAE",
		"targetCountryId": "c-1",
		"profile": {"skills": ["welding"], "internationalExp": 3}
	}`), "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if act.Disposition != "CONNECTED_REQUESTED_CALLBACK" || act.NextCallDate != "2026-11-02" || act.TargetCountryID != "c-1" {
		t.Errorf("activity = %+v", act)
	}
	if act.Profile.Skills == nil || (*act.Profile.Skills)[0] != "welding" {
		t.Errorf("skills = %v", act.Profile.Skills)
	}
	if act.Profile.InternationalExp == nil || *act.Profile.InternationalExp != 3 {
		t.Errorf("international exp = %v", act.Profile.InternationalExp)
	}
}

func TestParseYAML(t *testing.T) {
	input := `disposition: CONNECTED_INTERESTED
full_name: Jane Doe
profile:
  gender: F
  location:
    city: Pune
    country: India
`
	act, err := Parse([]byte(input), "yaml")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if act.FullName != "Jane Doe" || act.Profile.Gender == nil || *act.Profile.Gender != "F" {
		t.Errorf("activity = %+v", act)
	}
	if act.Profile.Location == nil || act.Profile.Location.City != "Pune" {
		t.Errorf("location = %+v", act.Profile.Location)
	}
}

func TestParseMarkdown(t *testing.T) {
	act, err := Parse([]byte("---\ndisposition: CONNECTED_REQUESTED_CALLBACK\nnext_call_date: 2026-11-02\n---\nAsked to call back after the shift.\n"), "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if act.Disposition != "CONNECTED_REQUESTED_CALLBACK" || act.Notes != "Asked to call back after the shift." {
		t.Errorf("activity = %+v", act)
	}

	act, err = Parse([]byte("  just a note \n"), "md")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if act.Notes != "just a note" {
		t.Errorf("notes = %q", act.Notes)
	}

	if _, err := Parse([]byte("---\ndisposition: X\n"), "md"); err == nil {
		t.Error("expected error for unterminated front matter")
	}
}

func TestParseValidates(t *testing.T) {
	if _, err := Parse([]byte(`{"callDisposition": "MAYBE"}`), "json"); err == nil {
		t.Error("expected error for unknown disposition")
	}
	if _, err := Parse([]byte(`{"nextCallDate": "tomorrow"}`), "json"); err == nil {
		t.Error("expected error for bad date")
	}
	if _, err := Parse([]byte(`notes: x`), "toml"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestParseField(t *testing.T) {
	p, err := ParseField("skills", " welding, rigging ,, ")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(*p.Skills, []string{"welding", "rigging"}) {
		t.Errorf("skills = %v", *p.Skills)
	}

	p, err = ParseField("language", "Hindi | English, Arabic")
	if err != nil {
		t.Fatal(err)
	}
	if p.Language.MotherTongue != "Hindi" || !reflect.DeepEqual(p.Language.Other, []string{"English", "Arabic"}) {
		t.Errorf("language = %+v", p.Language)
	}

	p, err = ParseField("language", "Tamil")
	if err != nil {
		t.Fatal(err)
	}
	if p.Language.MotherTongue != "Tamil" || p.Language.Other == nil || len(p.Language.Other) != 0 {
		t.Errorf("language = %+v", p.Language)
	}

	p, err = ParseField("location", "Pune, Maharashtra")
	if err != nil {
		t.Fatal(err)
	}
	if p.Location.City != "Pune" || p.Location.State != "Maharashtra" || p.Location.Country != "" {
		t.Errorf("location = %+v", p.Location)
	}

	p, err = ParseField("domestic_exp", "4.5")
	if err != nil {
		t.Fatal(err)
	}
	if *p.DomesticExp != 4.5 {
		t.Errorf("domestic exp = %v", *p.DomesticExp)
	}

	p, err = ParseField("gender", "  ")
	if err != nil {
		t.Fatal(err)
	}
	if !p.IsEmpty() {
		t.Errorf("empty value should give empty patch: %+v", p)
	}

	if _, err := ParseField("passport", "X123"); err == nil {
		t.Error("expected error for unknown field")
	}
	if _, err := ParseField("international_exp", "-1"); err == nil {
		t.Error("expected error for negative years")
	}
}
