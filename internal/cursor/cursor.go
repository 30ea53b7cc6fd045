// Package cursor encodes the position of a paged listing as an opaque token
// so a later call can continue where the previous one stopped.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/lherron/crmq/internal/domain"
)

// Cursor represents a position in a paged listing together with the query
// that produced it. A cursor is only valid for the same query.
type Cursor struct {
	Dataset domain.Dataset `json:"dataset"`
	Filters domain.Filters `json:"filters"`
	Search  string         `json:"search,omitempty"`
	Page    int            `json:"page"`
	Size    int            `json:"size"`
}

// Encode serializes the cursor to an opaque base64 string
func (c *Cursor) Encode() (string, error) {
	if err := c.validate(); err != nil {
		return "", err
	}
	jsonData, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(jsonData), nil
}

// Decode deserializes a cursor from an opaque base64 string
func Decode(encoded string) (*Cursor, error) {
	if encoded == "" {
		return nil, fmt.Errorf("empty cursor string")
	}

	jsonData, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	var c Cursor
	if err := json.Unmarshal(jsonData, &c); err != nil {
		return nil, fmt.Errorf("invalid cursor format: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	return &c, nil
}

func (c *Cursor) validate() error {
	if err := domain.ValidateDataset(c.Dataset); err != nil {
		return err
	}
	return domain.ValidatePage(c.Page, c.Size)
}

// Next returns the cursor of the following page, or nil when the current
// page is the last one for total records.
func (c *Cursor) Next(total int) *Cursor {
	if c.Size <= 0 || c.Page*c.Size >= total {
		return nil
	}
	next := *c
	next.Page++
	return &next
}

// Matches reports whether the cursor was produced by the given query.
func (c *Cursor) Matches(dataset domain.Dataset, f domain.Filters, search string) bool {
	return c.Dataset == dataset && c.Filters == f && c.Search == search
}

// NextToken is a convenience for listings: the encoded cursor of the page
// after (page, size), or "" at the end.
func NextToken(dataset domain.Dataset, f domain.Filters, search string, page, size, total int) (string, error) {
	cur := &Cursor{Dataset: dataset, Filters: f, Search: search, Page: page, Size: size}
	next := cur.Next(total)
	if next == nil {
		return "", nil
	}
	return next.Encode()
}
