package parse

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lherron/crmq/internal/domain"
)

// Format represents supported input formats
type Format string

const (
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "md"
)

// DetectFormat attempts to determine the format of the input data
// Returns an error if the format cannot be reliably determined
func DetectFormat(data []byte) (Format, error) {
	text := string(data)
	trimmed := strings.TrimSpace(text)

	if strings.HasPrefix(text, "---\n") {
		return FormatMarkdown, nil
	}

	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var js json.RawMessage
		if err := json.Unmarshal(data, &js); err == nil {
			return FormatJSON, nil
		}
		return "", fmt.Errorf("input appears to be JSON but is invalid")
	}

	// plain text is valid YAML too; only structured documents count
	var doc any
	if err := yaml.Unmarshal(data, &doc); err == nil {
		switch doc.(type) {
		case map[string]any, []any:
			return FormatYAML, nil
		}
	}

	// anything else is a free-text note
	return FormatMarkdown, nil
}

// ParseJSON parses a JSON activity document (camelCase keys).
func ParseJSON(data []byte) (*domain.Activity, error) {
	var act domain.Activity
	if err := json.Unmarshal(data, &act); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return &act, nil
}

// ParseYAML parses a YAML activity document (snake_case keys).
func ParseYAML(data []byte) (*domain.Activity, error) {
	var act domain.Activity
	if err := yaml.Unmarshal(data, &act); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	return &act, nil
}

// ParseMarkdown parses a note with optional YAML front matter. The body
// becomes the notes.
func ParseMarkdown(data []byte) (*domain.Activity, error) {
	text := string(data)
	var act domain.Activity

	if !strings.HasPrefix(text, "---\n") {
		act.Notes = strings.TrimSpace(text)
		return &act, nil
	}

	parts := strings.SplitN(text[4:], "\n---\n", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid markdown front matter format")
	}
	if err := yaml.Unmarshal([]byte(parts[0]), &act); err != nil {
		return nil, fmt.Errorf("failed to parse front matter: %w", err)
	}
	if body := strings.TrimSpace(parts[1]); body != "" {
		act.Notes = body
	}
	return &act, nil
}

// Parse parses activity data in the specified format.
// If format is empty, auto-detects the format.
func Parse(data []byte, format string) (*domain.Activity, error) {
	var detected Format
	if format == "" {
		f, err := DetectFormat(data)
		if err != nil {
			return nil, err
		}
		detected = f
	} else {
		detected = Format(format)
	}

	var (
		act *domain.Activity
		err error
	)
	switch detected {
	case FormatJSON:
		act, err = ParseJSON(data)
	case FormatYAML, "yml":
		act, err = ParseYAML(data)
	case FormatMarkdown, "markdown":
		act, err = ParseMarkdown(data)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	if err != nil {
		return nil, err
	}
	if err := act.Validate(); err != nil {
		return nil, err
	}
	return act, nil
}

// InlineFields lists the profile fields accepted by ParseField.
var InlineFields = []string{"skills", "language", "dob", "gender", "location", "international_exp", "domestic_exp"}

// ParseField turns one inline edit into a profile patch.
//
//	skills      a, b, c
//	language    mother | other, other
//	location    city, state, country
//
// An empty value returns an empty patch.
func ParseField(field, value string) (domain.ProfilePatch, error) {
	var patch domain.ProfilePatch
	value = strings.TrimSpace(value)
	if value == "" {
		return patch, nil
	}

	switch field {
	case "skills":
		skills := splitList(value)
		patch.Skills = &skills
	case "language":
		mother, others, _ := strings.Cut(value, "|")
		patch.Language = &domain.Language{MotherTongue: strings.TrimSpace(mother), Other: splitList(others)}
	case "dob":
		patch.DOB = &value
	case "gender":
		patch.Gender = &value
	case "location":
		parts := strings.SplitN(value, ",", 3)
		for len(parts) < 3 {
			parts = append(parts, "")
		}
		patch.Location = &domain.Location{
			City:    strings.TrimSpace(parts[0]),
			State:   strings.TrimSpace(parts[1]),
			Country: strings.TrimSpace(parts[2]),
		}
	case "international_exp", "domestic_exp":
		n, err := strconv.ParseFloat(value, 64)
		if err != nil || n < 0 {
			return patch, fmt.Errorf("invalid %s %q: expected a non-negative number of years", field, value)
		}
		if field == "international_exp" {
			patch.InternationalExp = &n
		} else {
			patch.DomesticExp = &n
		}
	default:
		return patch, fmt.Errorf("unknown field %q (valid: %s)", field, strings.Join(InlineFields, ", "))
	}
	return patch, nil
}

// splitList splits on commas, trims, and drops empty items. It never
// returns nil.
func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
