// Package render writes command output as a table, JSON, NDJSON, YAML or
// TSV.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Format represents an output format
type Format string

const (
	FormatTable  Format = "table"
	FormatJSON   Format = "json"
	FormatNDJSON Format = "ndjson"
	FormatYAML   Format = "yaml"
	FormatTSV    Format = "tsv"
)

// ParseFormat validates an output format name. Empty means table.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatNDJSON, FormatYAML, FormatTSV:
		return f, nil
	}
	return "", fmt.Errorf("invalid output format %q (table, json, ndjson, yaml, tsv)", s)
}

// Options for rendering
type Options struct {
	Format    Format
	Porcelain bool
	// MaxWidth truncates table cells; 0 means no limit.
	MaxWidth int
}

// Renderer handles output rendering
type Renderer struct {
	writer io.Writer
	opts   Options
}

// NewRenderer creates a new renderer
func NewRenderer(writer io.Writer, opts Options) *Renderer {
	if opts.Format == "" {
		opts.Format = FormatTable
	}
	return &Renderer{
		writer: writer,
		opts:   opts,
	}
}

// Format returns the configured format.
func (r *Renderer) Format() Format {
	return r.opts.Format
}

// Render writes data in the configured format. data is used for the
// structured formats; headers and rows for table and TSV. A slice passed
// as data becomes one line per element in NDJSON.
func (r *Renderer) Render(data any, headers []string, rows [][]string) error {
	switch r.opts.Format {
	case FormatJSON:
		return r.RenderJSON(data)
	case FormatNDJSON:
		return r.RenderNDJSON(toItems(data))
	case FormatYAML:
		return r.RenderYAML(data)
	case FormatTSV:
		return r.RenderTSV(headers, rows)
	default:
		return r.RenderTable(headers, rows)
	}
}

func toItems(data any) []any {
	v := reflect.ValueOf(data)
	if v.Kind() != reflect.Slice {
		return []any{data}
	}
	items := make([]any, v.Len())
	for i := range items {
		items[i] = v.Index(i).Interface()
	}
	return items
}

// RenderJSON renders data as JSON
func (r *Renderer) RenderJSON(data any) error {
	encoder := json.NewEncoder(r.writer)
	if !r.opts.Porcelain {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// RenderNDJSON renders data as newline-delimited JSON
func (r *Renderer) RenderNDJSON(items []any) error {
	encoder := json.NewEncoder(r.writer)
	for _, item := range items {
		if err := encoder.Encode(item); err != nil {
			return err
		}
	}
	return nil
}

// RenderYAML renders data as YAML. Values go through JSON first so the
// output keys match the JSON field names.
func (r *Renderer) RenderYAML(data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	encoder := yaml.NewEncoder(r.writer)
	encoder.SetIndent(2)
	defer encoder.Close()
	return encoder.Encode(generic)
}

// RenderTSV renders data as tab-separated values. Tabs and newlines inside
// cells become spaces.
func (r *Renderer) RenderTSV(headers []string, rows [][]string) error {
	if _, err := fmt.Fprintln(r.writer, strings.Join(headers, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		clean := make([]string, len(row))
		for i, cell := range row {
			clean[i] = strings.NewReplacer("\t", " ", "\r", " ", "\n", " ").Replace(cell)
		}
		if _, err := fmt.Fprintln(r.writer, strings.Join(clean, "\t")); err != nil {
			return err
		}
	}
	return nil
}

// RenderList renders a simple list of strings, one per line.
func (r *Renderer) RenderList(items []string) error {
	for _, item := range items {
		if _, err := fmt.Fprintln(r.writer, item); err != nil {
			return err
		}
	}
	return nil
}

// RenderTable renders data as a formatted table
func (r *Renderer) RenderTable(headers []string, rows [][]string) error {
	if len(rows) == 0 {
		if !r.opts.Porcelain {
			_, err := fmt.Fprintln(r.writer, "(no records)")
			return err
		}
		return nil
	}

	cells := make([][]string, len(rows))
	for i, row := range rows {
		cells[i] = make([]string, len(row))
		for j, cell := range row {
			cells[i][j] = r.fit(cell)
		}
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range cells {
		for i, cell := range row {
			if n := utf8.RuneCountInString(cell); i < len(widths) && n > widths[i] {
				widths[i] = n
			}
		}
	}

	if !r.opts.Porcelain {
		r.renderTableRow(headers, widths)
		r.renderTableSeparator(widths)
	} else {
		fmt.Fprintln(r.writer, strings.Join(headers, "\t"))
	}

	for _, row := range cells {
		if r.opts.Porcelain {
			fmt.Fprintln(r.writer, strings.Join(row, "\t"))
		} else {
			r.renderTableRow(row, widths)
		}
	}

	return nil
}

// fit flattens a cell to one line and truncates it to MaxWidth runes.
func (r *Renderer) fit(cell string) string {
	cell = strings.Join(strings.Fields(cell), " ")
	if r.opts.MaxWidth <= 0 || r.opts.Porcelain {
		return cell
	}
	if utf8.RuneCountInString(cell) <= r.opts.MaxWidth {
		return cell
	}
	runes := []rune(cell)
	return string(runes[:max(r.opts.MaxWidth-1, 0)]) + "…"
}

func (r *Renderer) renderTableRow(cells []string, widths []int) {
	for i, cell := range cells {
		if i < len(widths) {
			pad := widths[i] - utf8.RuneCountInString(cell)
			fmt.Fprint(r.writer, cell)
			if i < len(cells)-1 {
				fmt.Fprint(r.writer, strings.Repeat(" ", pad+2))
			}
		}
	}
	fmt.Fprintln(r.writer)
}

func (r *Renderer) renderTableSeparator(widths []int) {
	for i, width := range widths {
		fmt.Fprint(r.writer, strings.Repeat("-", width))
		if i < len(widths)-1 {
			fmt.Fprint(r.writer, "  ")
		}
	}
	fmt.Fprintln(r.writer)
}
