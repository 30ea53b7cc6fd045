package domain

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Sentinel errors shared across packages.
var (
	ErrNotFound          = errors.New("not found")
	ErrNoIdentity        = errors.New("no signed-in recruiter: set CRMQ_ACTOR_EMAIL or pass --as")
	ErrAlreadyAssigned   = errors.New("record is already assigned")
	ErrNotAssignedToSelf = errors.New("record is not assigned to you")
	ErrExportInProgress  = errors.New("an export is already in progress")
	ErrUnknownRecord     = errors.New("record is not in the current view")
)

// MaxPageSize is the largest page the primary API serves.
const MaxPageSize = 500

// UUIDv4Regex validates lowercase UUIDv4 format
var UUIDv4Regex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// ValidateUUID validates a UUID v4 format (lowercase with hyphens)
func ValidateUUID(uuid string) error {
	if !UUIDv4Regex.MatchString(uuid) {
		return fmt.Errorf("invalid UUID: must be lowercase UUIDv4 format (e.g., 550e8400-e29b-41d4-a716-446655440000)")
	}
	return nil
}

// ValidateDataset validates a dataset name
func ValidateDataset(d Dataset) error {
	switch d {
	case DatasetUsers, DatasetApplications:
		return nil
	default:
		return fmt.Errorf("invalid dataset: must be one of: user-level, application-level")
	}
}

// ValidateSubset validates an export subset
func ValidateSubset(s Subset) error {
	switch s {
	case SubsetAll, SubsetAddressed, SubsetUnaddressed:
		return nil
	default:
		return fmt.Errorf("invalid subset: must be one of: all, addressed, unaddressed")
	}
}

// ValidateMissingDetails validates the missing-details filter
func ValidateMissingDetails(m MissingDetails) error {
	switch m {
	case MissingDetailsAny, MissingDetailsYes, MissingDetailsNo:
		return nil
	default:
		return fmt.Errorf("invalid missing-details filter: must be Yes, No or empty")
	}
}

// ValidateDisposition validates a call disposition. Empty clears it.
func ValidateDisposition(d string) error {
	if d == "" || IsDisposition(d) {
		return nil
	}
	return fmt.Errorf("invalid disposition %q: see `crmq dispositions`", d)
}

// IsDisposition reports whether d is a known disposition.
func IsDisposition(d string) bool {
	for _, known := range Dispositions {
		if known == d {
			return true
		}
	}
	return false
}

// ValidateDay validates a YYYY-MM-DD calendar date. Empty is allowed.
func ValidateDay(s string) error {
	if s == "" {
		return nil
	}
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return nil
}

// ValidatePage validates a page number and page size
func ValidatePage(page, size int) error {
	if page < 1 {
		return fmt.Errorf("invalid page %d: must be >= 1", page)
	}
	if size < 1 || size > MaxPageSize {
		return fmt.Errorf("invalid page size %d: must be between 1 and %d", size, MaxPageSize)
	}
	return nil
}

// ValidateTimestamp validates and parses an ISO8601 timestamp
func ValidateTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp format: expected ISO8601/RFC3339")
	}
	return t, nil
}

// NotFoundError is returned when a record or overlay row does not exist
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// AssignmentConflictError is returned when a record is claimed by someone else
type AssignmentConflictError struct {
	UserID   string
	Assignee string
}

func (e *AssignmentConflictError) Error() string {
	return fmt.Sprintf("record %s is already assigned to %s", e.UserID, e.Assignee)
}

func (e *AssignmentConflictError) Unwrap() error {
	return ErrAlreadyAssigned
}
