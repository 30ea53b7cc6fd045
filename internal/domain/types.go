package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/lherron/crmq/internal/id"
)

// Dataset selects which primary collection a view reads.
type Dataset string

const (
	DatasetUsers        Dataset = "user-level"
	DatasetApplications Dataset = "application-level"
)

// Subset narrows an export by disposition presence.
type Subset string

const (
	SubsetAll         Subset = "all"
	SubsetAddressed   Subset = "addressed"
	SubsetUnaddressed Subset = "unaddressed"
)

// MissingDetails is the tri-state "missing details" filter.
type MissingDetails string

const (
	MissingDetailsAny MissingDetails = ""
	MissingDetailsYes MissingDetails = "Yes"
	MissingDetailsNo  MissingDetails = "No"
)

// AssigneeUnassigned is the assignee filter sentinel understood by the
// primary API for records nobody has claimed.
const AssigneeUnassigned = "Unassigned"

// Dispositions lists every call outcome a recruiter can record.
var Dispositions = []string{
	"CALL_ATTEMPT_NO_ANSWER", "CALL_ATTEMPT_NOT_REACHABLE", "CALL_ATTEMPT_WRONG_NUMBER",
	"CALL_ATTEMPT_BUSY_DECLINED", "VOICEMAIL_SENT", "FOLLOW_UP_SCHEDULED",
	"CONNECTED_SCREENING_COMPLETED", "CONNECTED_INTERESTED", "CONNECTED_NOT_INTERESTED",
	"CONNECTED_REQUESTED_CALLBACK", "CONNECTED_NEEDS_MORE_INFO", "QUALIFIED_MEETS_ALL_CRITERIA",
	"PARTIALLY_QUALIFIED_MISSING_DOCUMENTS", "PARTIALLY_QUALIFIED_MISSING_EXPERIENCE",
	"NOT_QUALIFIED", "UNDER_REVIEW_VERIFICATION_IN_PROGRESS", "DOCUMENTS_SUBMITTED_PENDING_REVIEW",
	"DOCUMENTS_APPROVED", "DOCUMENTS_REJECTED_REUPLOAD_REQUIRED", "VERIFICATION_COMPLETED",
	"VERIFICATION_FAILED", "INTERVIEW_SCHEDULED", "INTERVIEW_RESCHEDULED",
	"INTERVIEW_COMPLETED_SELECTED", "INTERVIEW_COMPLETED_ON_HOLD", "INTERVIEW_COMPLETED_REJECTED",
	"CANDIDATE_NO_SHOW_INTERVIEW", "OFFER_EXTENDED", "OFFER_ACCEPTED", "OFFER_DECLINED",
	"ONBOARDING_INITIATED", "ONBOARDING_COMPLETED", "CANDIDATE_UNRESPONSIVE",
	"CANDIDATE_WITHDREW_APPLICATION", "CANDIDATE_JOINED_ANOTHER_EMPLOYER", "DUPLICATE_APPLICATION",
	"APPLICATION_CLOSED_BY_EMPLOYER", "VISA_DOCUMENTATION_STARTED", "VISA_APPROVED",
	"TRAVEL_SCHEDULED", "CANDIDATE_DEPLOYED", "DEPLOYMENT_DELAYED",
}

// Date is a timestamp as exported by the primary store. It accepts plain
// strings, {"$date": ...} wrappers and epoch milliseconds, and keeps the
// value as an ISO-8601 string.
type Date string

// UnmarshalJSON decodes any supported date shape. Unknown shapes decode to
// the empty date.
func (d *Date) UnmarshalJSON(data []byte) error {
	*d = Date(decodeDate(data))
	return nil
}

func decodeDate(data []byte) string {
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return ""
		}
		if v, ok := obj["$date"]; ok {
			return decodeDate(v)
		}
		if v, ok := obj["$numberLong"]; ok {
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return ""
			}
			return decodeDate([]byte(s))
		}
		return ""
	default:
		ms, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return ""
		}
		return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
	}
}

// Time parses the date. The second result is false when the value is empty
// or not a recognised layout.
func (d Date) Time() (time.Time, bool) {
	s := strings.TrimSpace(string(d))
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Day returns the calendar-date part of the value (everything before 'T').
func (d Date) Day() string {
	s := string(d)
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		return s[:i]
	}
	return s
}

// NamedRef is a reference that the primary store sometimes exports as a
// bare name and sometimes as {id, name}.
type NamedRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// Ref builds a name-only reference.
func Ref(name string) NamedRef {
	return NamedRef{Name: name}
}

// String returns the display name.
func (r NamedRef) String() string {
	return r.Name
}

// IsZero reports whether neither id nor name is set.
func (r NamedRef) IsZero() bool {
	return r.ID == "" && r.Name == ""
}

// UnmarshalJSON accepts "name", {"id": ..., "name": ...} and {"_id": ..., "name": ...}.
func (r *NamedRef) UnmarshalJSON(data []byte) error {
	*r = NamedRef{}
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 {
		return nil
	}
	switch raw[0] {
	case '"':
		return json.Unmarshal(raw, &r.Name)
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return err
		}
		if v, ok := obj["id"]; ok {
			r.ID = id.Canonical(v)
		}
		if v, ok := obj["_id"]; ok && r.ID == "" {
			r.ID = id.Canonical(v)
		}
		if v, ok := obj["name"]; ok {
			_ = json.Unmarshal(v, &r.Name)
		}
	}
	return nil
}

// MarshalJSON encodes name-only references as a bare string.
func (r NamedRef) MarshalJSON() ([]byte, error) {
	if r.ID == "" {
		return json.Marshal(r.Name)
	}
	type plain NamedRef
	return json.Marshal(plain(r))
}

// Location is a candidate's home location.
type Location struct {
	City    string `json:"city,omitempty" yaml:"city,omitempty"`
	State   string `json:"state,omitempty" yaml:"state,omitempty"`
	Country string `json:"country,omitempty" yaml:"country,omitempty"`
}

// IsZero reports whether no part of the location is set.
func (l *Location) IsZero() bool {
	return l == nil || (l.City == "" && l.State == "" && l.Country == "")
}

// String renders the location as "city state country".
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	return strings.TrimSpace(l.City + " " + l.State + " " + l.Country)
}

// Language holds a candidate's spoken languages.
type Language struct {
	MotherTongue string   `json:"motherTongue,omitempty" yaml:"mother_tongue,omitempty"`
	Other        []string `json:"other,omitempty" yaml:"other,omitempty"`
}

// IsZero reports whether no language is set.
func (l *Language) IsZero() bool {
	return l == nil || (l.MotherTongue == "" && len(l.Other) == 0)
}

// String renders the language as "mother | other, other".
func (l *Language) String() string {
	if l == nil {
		return ""
	}
	return l.MotherTongue + " | " + strings.Join(l.Other, ", ")
}

// Education is one education entry. Text carries free-form entries that
// the primary store exports as a bare string.
type Education struct {
	Degree          string `json:"degree,omitempty" yaml:"degree,omitempty"`
	InstitutionName string `json:"institutionName,omitempty" yaml:"institution_name,omitempty"`
	FieldOfStudy    string `json:"fieldOfStudy,omitempty" yaml:"field_of_study,omitempty"`
	StartDate       Date   `json:"startDate,omitempty" yaml:"start_date,omitempty"`
	EndDate         Date   `json:"endDate,omitempty" yaml:"end_date,omitempty"`
	Text            string `json:"text,omitempty" yaml:"text,omitempty"`
}

// EducationList decodes either an array of entries or a single string.
type EducationList []Education

// UnmarshalJSON implements the array-or-string decode.
func (l *EducationList) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*l = nil
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		if s == "" {
			*l = EducationList{}
			return nil
		}
		*l = EducationList{{Text: s}}
		return nil
	}
	var entries []Education
	if err := json.Unmarshal(raw, &entries); err != nil {
		return err
	}
	*l = entries
	return nil
}

// Summary renders entries as "degree at institution; ...".
func (l EducationList) Summary() string {
	parts := make([]string, 0, len(l))
	for _, e := range l {
		if e.Text != "" {
			parts = append(parts, e.Text)
			continue
		}
		parts = append(parts, e.Degree+" at "+e.InstitutionName)
	}
	return strings.Join(parts, "; ")
}

// Experience is one work-history entry.
type Experience struct {
	Position    string `json:"position,omitempty" yaml:"position,omitempty"`
	CompanyName string `json:"companyName,omitempty" yaml:"company_name,omitempty"`
	Country     string `json:"country,omitempty" yaml:"country,omitempty"`
	StartDate   Date   `json:"startDate,omitempty" yaml:"start_date,omitempty"`
	EndDate     Date   `json:"endDate,omitempty" yaml:"end_date,omitempty"`
	Text        string `json:"text,omitempty" yaml:"text,omitempty"`
}

// ExperienceList decodes either an array of entries or a single string.
type ExperienceList []Experience

// UnmarshalJSON implements the array-or-string decode.
func (l *ExperienceList) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*l = nil
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		if s == "" {
			*l = ExperienceList{}
			return nil
		}
		*l = ExperienceList{{Text: s}}
		return nil
	}
	var entries []Experience
	if err := json.Unmarshal(raw, &entries); err != nil {
		return err
	}
	*l = entries
	return nil
}

// Summary renders entries as "position at company; ...".
func (l ExperienceList) Summary() string {
	parts := make([]string, 0, len(l))
	for _, e := range l {
		if e.Text != "" {
			parts = append(parts, e.Text)
			continue
		}
		parts = append(parts, e.Position+" at "+e.CompanyName)
	}
	return strings.Join(parts, "; ")
}

// Profile holds the candidate attributes that the overlay store can
// override. It is embedded in both primary record types.
type Profile struct {
	PassportNumber     string         `json:"passportNumber,omitempty"`
	DOB                Date           `json:"dob,omitempty"`
	Gender             string         `json:"gender,omitempty"`
	ExperienceType     string         `json:"experienceType,omitempty"`
	Location           *Location      `json:"location,omitempty"`
	SecondaryCountries []NamedRef     `json:"secondaryCountries,omitempty"`
	SecondaryJobRoles  []NamedRef     `json:"secondaryJobRoles,omitempty"`
	Skills             []string       `json:"skills,omitempty"`
	Language           *Language      `json:"language,omitempty"`
	Education          EducationList  `json:"education,omitempty"`
	Experience         ExperienceList `json:"experience,omitempty"`
	InternationalExp   *float64       `json:"internationalExp,omitempty"`
	DomesticExp        *float64       `json:"domesticExp,omitempty"`
}

// CrmData is the CRM sub-object the primary store keeps per record.
type CrmData struct {
	Assignee        string `json:"assignee,omitempty"`
	CallDisposition string `json:"callDisposition,omitempty"`
	Notes           string `json:"notes,omitempty"`
	NextCallDate    Date   `json:"nextCallDate,omitempty"`
}

// Candidate is a user-level record from the primary store.
type Candidate struct {
	ID                    id.ID    `json:"_id"`
	PhoneNumber           string   `json:"phoneNumber,omitempty"`
	FullName              string   `json:"fullName,omitempty"`
	HasApplied            bool     `json:"hasApplied"`
	LatestApplicationDate Date     `json:"latestApplicationDate,omitempty"`
	CreatedAt             Date     `json:"createdAt,omitempty"`
	TargetCountry         NamedRef `json:"targetCountry"`
	TargetJobRole         NamedRef `json:"targetJobRole"`
	CrmData               CrmData  `json:"crmData"`
	Profile
}

// UserRef is an application's "user" field: either a bare id string or the
// joined candidate document.
type UserRef struct {
	ID        id.ID
	Candidate *Candidate
}

// UnmarshalJSON decodes the string-or-object shape.
func (u *UserRef) UnmarshalJSON(data []byte) error {
	*u = UserRef{}
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 {
		return nil
	}
	switch raw[0] {
	case '"':
		u.ID = id.ID(id.Canonical(raw))
	case '{':
		var c Candidate
		if err := json.Unmarshal(raw, &c); err != nil {
			return err
		}
		u.ID = c.ID
		u.Candidate = &c
	}
	return nil
}

// MarshalJSON encodes the joined document when present, otherwise the id.
func (u UserRef) MarshalJSON() ([]byte, error) {
	if u.Candidate != nil {
		return json.Marshal(u.Candidate)
	}
	if u.ID == "" {
		return []byte("null"), nil
	}
	return json.Marshal(u.ID)
}

// Salary is a job's salary band.
type Salary struct {
	Min       float64 `json:"min,omitempty"`
	Max       float64 `json:"max,omitempty"`
	Currency  string  `json:"currency,omitempty"`
	Frequency string  `json:"frequency,omitempty"`
}

// String renders the band as "min - max currency".
func (s *Salary) String() string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(strconv.FormatFloat(s.Min, 'f', -1, 64) + " - " +
		strconv.FormatFloat(s.Max, 'f', -1, 64) + " " + s.Currency)
}

// Company is the employer on a job snapshot.
type Company struct {
	Name string `json:"name,omitempty"`
}

// JobLocation is where a job is based.
type JobLocation struct {
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Country string `json:"country,omitempty"`
	Remote  bool   `json:"remote,omitempty"`
}

// Requirements are the candidate requirements of a job.
type Requirements struct {
	Gender     string `json:"gender,omitempty"`
	Experience struct {
		MinimumYears float64 `json:"minimumYears,omitempty"`
	} `json:"experience"`
	Certifications []string `json:"certifications,omitempty"`
}

// JobSnapshot is the job as it looked when the application was created.
type JobSnapshot struct {
	Title                 string        `json:"title,omitempty"`
	Description           string        `json:"description,omitempty"`
	Responsibilities      string        `json:"responsibilities,omitempty"`
	Type                  string        `json:"type,omitempty"`
	Positions             int           `json:"positions,omitempty"`
	Company               Company       `json:"company"`
	Salary                *Salary       `json:"salary,omitempty"`
	Location              *JobLocation  `json:"location,omitempty"`
	CandidateRequirements *Requirements `json:"candidateRequirements,omitempty"`
	FacilitiesAndBenefits []string      `json:"facilitiesAndBenefits,omitempty"`
}

// Application is an application-level record from the primary store.
type Application struct {
	ID            id.ID        `json:"_id"`
	UserID        id.ID        `json:"userId"`
	User          UserRef      `json:"user"`
	CreatedAt     Date         `json:"createdAt,omitempty"`
	FullName      string       `json:"fullName,omitempty"`
	PhoneNumber   string       `json:"phoneNumber,omitempty"`
	TargetCountry NamedRef     `json:"targetCountry"`
	TargetJobRole NamedRef     `json:"targetJobRole"`
	JobTitle      string       `json:"jobTitle,omitempty"`
	CompanyName   string       `json:"companyName,omitempty"`
	JobSnapshot   *JobSnapshot `json:"jobSnapshot,omitempty"`
	CrmData       CrmData      `json:"crmData"`
	Profile
}

// CandidateID resolves the candidate an application belongs to: explicit
// userId, then the joined user's id (or the user field when it is a bare
// string), then the application's own id.
func (a *Application) CandidateID() id.ID {
	return id.First(a.UserID, a.User.ID, a.ID)
}

// OverrideProfile is a row of the user_profiles overlay table. Nil fields
// are NULL columns.
type OverrideProfile struct {
	UserID           string         `json:"user_id"`
	Skills           []string       `json:"skills,omitempty"`
	Language         *Language      `json:"language,omitempty"`
	Education        EducationList  `json:"education,omitempty"`
	Experience       ExperienceList `json:"experience,omitempty"`
	DOB              string         `json:"dob,omitempty"`
	Gender           string         `json:"gender,omitempty"`
	Location         *Location      `json:"location,omitempty"`
	InternationalExp *float64       `json:"international_exp,omitempty"`
	DomesticExp      *float64       `json:"domestic_exp,omitempty"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// ProfilePatch is a partial profile edit. Nil fields are left untouched.
type ProfilePatch struct {
	Skills           *[]string       `json:"skills,omitempty" yaml:"skills,omitempty"`
	Language         *Language       `json:"language,omitempty" yaml:"language,omitempty"`
	Education        *EducationList  `json:"education,omitempty" yaml:"education,omitempty"`
	Experience       *ExperienceList `json:"experience,omitempty" yaml:"experience,omitempty"`
	DOB              *string         `json:"dob,omitempty" yaml:"dob,omitempty"`
	Gender           *string         `json:"gender,omitempty" yaml:"gender,omitempty"`
	Location         *Location       `json:"location,omitempty" yaml:"location,omitempty"`
	InternationalExp *float64        `json:"internationalExp,omitempty" yaml:"international_exp,omitempty"`
	DomesticExp      *float64        `json:"domesticExp,omitempty" yaml:"domestic_exp,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p *ProfilePatch) IsEmpty() bool {
	return p == nil || (p.Skills == nil && p.Language == nil && p.Education == nil &&
		p.Experience == nil && p.DOB == nil && p.Gender == nil && p.Location == nil &&
		p.InternationalExp == nil && p.DomesticExp == nil)
}

// Activity is one recorded call outcome, with the header fields and profile
// edits made alongside it. Empty strings keep the record's current value.
type Activity struct {
	Disposition     string       `json:"callDisposition,omitempty" yaml:"disposition,omitempty"`
	Notes           string       `json:"notes,omitempty" yaml:"notes,omitempty"`
	NextCallDate    string       `json:"nextCallDate,omitempty" yaml:"next_call_date,omitempty"`
	FullName        string       `json:"fullName,omitempty" yaml:"full_name,omitempty"`
	TargetCountry   string       `json:"targetCountry,omitempty" yaml:"target_country,omitempty"`
	TargetCountryID string       `json:"targetCountryId,omitempty" yaml:"target_country_id,omitempty"`
	TargetJobRole   string       `json:"targetJobRole,omitempty" yaml:"target_job_role,omitempty"`
	TargetJobRoleID string       `json:"targetJobRoleId,omitempty" yaml:"target_job_role_id,omitempty"`
	Profile         ProfilePatch `json:"profile,omitempty" yaml:"profile,omitempty"`
}

// Validate checks the disposition and next call date.
func (a *Activity) Validate() error {
	if err := ValidateDisposition(a.Disposition); err != nil {
		return err
	}
	return ValidateDay(a.NextCallDate)
}

// OverrideCrmAnnotation is a row of the userflow_crm overlay table.
type OverrideCrmAnnotation struct {
	ID              int64     `json:"id"`
	UserID          string    `json:"user_id"`
	FullName        string    `json:"full_name,omitempty"`
	TargetCountry   string    `json:"target_country,omitempty"`
	TargetJobRole   string    `json:"target_job_role,omitempty"`
	TargetCountryID string    `json:"target_country_id,omitempty"`
	TargetJobRoleID string    `json:"target_job_role_id,omitempty"`
	CallDisposition string    `json:"call_disposition,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	NextCallDate    string    `json:"next_call_date,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Assignment is a row of the user_assignments overlay table.
type Assignment struct {
	UserID     string    `json:"user_id"`
	AssignedTo string    `json:"assigned_to"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DashboardPreferences is a row of the dashboard_preferences overlay table.
type DashboardPreferences struct {
	UserID        string    `json:"user_id"`
	SelectedCards []string  `json:"selected_cards"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Event is one entry of the local overlay activity log.
type Event struct {
	ID        string    `json:"id"`
	Actor     string    `json:"actor"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	Payload   string    `json:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Event kinds written by the overlay store.
const (
	EventAssignmentUpserted  = "assignment.upserted"
	EventProfileUpserted     = "profile.upserted"
	EventAnnotationUpserted  = "annotation.upserted"
	EventPreferencesUpserted = "preferences.upserted"
)

// MergedRecord is the ephemeral combination of a primary record and its
// overlay rows. For user-level records ID equals UserID.
type MergedRecord struct {
	Dataset               Dataset        `json:"dataset"`
	ID                    string         `json:"id"`
	UserID                string         `json:"userId"`
	PhoneNumber           string         `json:"phoneNumber,omitempty"`
	FullName              string         `json:"fullName,omitempty"`
	PassportNumber        string         `json:"passportNumber,omitempty"`
	DOB                   string         `json:"dob,omitempty"`
	Gender                string         `json:"gender,omitempty"`
	ExperienceType        string         `json:"experienceType,omitempty"`
	Location              *Location      `json:"location,omitempty"`
	SecondaryCountries    []NamedRef     `json:"secondaryCountries,omitempty"`
	SecondaryJobRoles     []NamedRef     `json:"secondaryJobRoles,omitempty"`
	Skills                []string       `json:"skills,omitempty"`
	Language              *Language      `json:"language,omitempty"`
	Education             EducationList  `json:"education,omitempty"`
	Experience            ExperienceList `json:"experience,omitempty"`
	InternationalExp      *float64       `json:"internationalExp,omitempty"`
	DomesticExp           *float64       `json:"domesticExp,omitempty"`
	HasApplied            bool           `json:"hasApplied"`
	LatestApplicationDate Date           `json:"latestApplicationDate,omitempty"`
	CreatedAt             Date           `json:"createdAt,omitempty"`
	TargetCountry         string         `json:"targetCountry,omitempty"`
	TargetJobRole         string         `json:"targetJobRole,omitempty"`
	TargetCountryID       string         `json:"targetCountryId,omitempty"`
	TargetJobRoleID       string         `json:"targetJobRoleId,omitempty"`
	Assignee              string         `json:"assignee,omitempty"`
	Disposition           string         `json:"disposition,omitempty"`
	Notes                 string         `json:"notes,omitempty"`
	NextCallDate          string         `json:"nextCallDate,omitempty"`
	JobTitle              string         `json:"jobTitle,omitempty"`
	CompanyName           string         `json:"companyName,omitempty"`
	JobSnapshot           *JobSnapshot   `json:"jobSnapshot,omitempty"`
}

// MissingDetails reports whether any of full name, target country or
// target job role is empty.
func (r *MergedRecord) MissingDetails() bool {
	return r.FullName == "" || r.TargetCountry == "" || r.TargetJobRole == ""
}

// Addressed reports whether a call disposition has been recorded.
func (r *MergedRecord) Addressed() bool {
	return r.Disposition != ""
}

// Tally counts addressed and unaddressed records of a loaded page.
type Tally struct {
	Addressed   int `json:"addressed"`
	Unaddressed int `json:"unaddressed"`
}

// TallyOf counts records by whether they carry a disposition.
func TallyOf(records []MergedRecord) Tally {
	var t Tally
	for i := range records {
		if records[i].Addressed() {
			t.Addressed++
		} else {
			t.Unaddressed++
		}
	}
	return t
}

// Filters are the view filters. Which ones the primary API honours depends
// on the dataset; the rest are applied client-side.
type Filters struct {
	UserInfo       string         `json:"userInfo,omitempty"`
	Applied        string         `json:"applied,omitempty"`
	Country        string         `json:"country,omitempty"`
	JobRole        string         `json:"jobRole,omitempty"`
	Disposition    string         `json:"disposition,omitempty"`
	Assignee       string         `json:"assignee,omitempty"`
	MissingDetails MissingDetails `json:"missingDetails,omitempty"`
	StartDate      string         `json:"startDate,omitempty"`
	EndDate        string         `json:"endDate,omitempty"`
}

// CRMUpdate is the body of the primary API's crm-update endpoint.
type CRMUpdate struct {
	UserID          string    `json:"userId"`
	ApplicationID   string    `json:"applicationId,omitempty"`
	Assignee        string    `json:"assignee,omitempty"`
	CallDisposition string    `json:"callDisposition,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	NextCallDate    string    `json:"nextCallDate,omitempty"`
	FullName        string    `json:"fullName,omitempty"`
	TargetCountry   *NamedRef `json:"targetCountry,omitempty"`
	TargetJobRole   *NamedRef `json:"targetJobRole,omitempty"`
}
