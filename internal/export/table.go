package export

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/lherron/crmq/internal/domain"
)

// CreatedAtLayout is how timestamps are written to export files.
const CreatedAtLayout = "2006-01-02 15:04:05"

// Column is one export column. Text columns hold free text and are always
// quoted; other cells are quoted only when they need it.
type Column struct {
	Header string
	Text   bool
	Value  func(n int, r *domain.MergedRecord) string
}

func serial(n int, _ *domain.MergedRecord) string { return strconv.Itoa(n) }

func field(get func(r *domain.MergedRecord) string) func(int, *domain.MergedRecord) string {
	return func(_ int, r *domain.MergedRecord) string { return get(r) }
}

func createdAt(r *domain.MergedRecord) string {
	if t, ok := r.CreatedAt.Time(); ok {
		return t.UTC().Format(CreatedAtLayout)
	}
	return string(r.CreatedAt)
}

func applied(r *domain.MergedRecord) string {
	if r.HasApplied {
		return "Y"
	}
	return "N"
}

func latestApp(r *domain.MergedRecord) string {
	if d := r.LatestApplicationDate.Day(); d != "" {
		return d
	}
	return "-"
}

func jobTitle(r *domain.MergedRecord) string {
	if r.JobSnapshot != nil && r.JobSnapshot.Title != "" {
		return r.JobSnapshot.Title
	}
	return r.JobTitle
}

func company(r *domain.MergedRecord) string {
	if r.JobSnapshot != nil && r.JobSnapshot.Company.Name != "" {
		return r.JobSnapshot.Company.Name
	}
	return r.CompanyName
}

func salary(r *domain.MergedRecord) string {
	if r.JobSnapshot == nil {
		return ""
	}
	return r.JobSnapshot.Salary.String()
}

var (
	colSerial        = Column{"S.No", false, serial}
	colUserID        = Column{"User ID", false, field(func(r *domain.MergedRecord) string { return r.UserID })}
	colCreatedAt     = Column{"Created At", true, field(createdAt)}
	colPhone         = Column{"Phone Number", true, field(func(r *domain.MergedRecord) string { return r.PhoneNumber })}
	colFullName      = Column{"Full Name", true, field(func(r *domain.MergedRecord) string { return r.FullName })}
	colApplied       = Column{"Applied?", false, field(applied)}
	colLatestApp     = Column{"Latest App Date", false, field(latestApp)}
	colTargetCountry = Column{"Target Country", true, field(func(r *domain.MergedRecord) string { return r.TargetCountry })}
	colTargetJobRole = Column{"Target Job Role", true, field(func(r *domain.MergedRecord) string { return r.TargetJobRole })}
	colAssignee      = Column{"Assignee", true, field(func(r *domain.MergedRecord) string { return r.Assignee })}
	colDisposition   = Column{"Call Disposition", true, field(func(r *domain.MergedRecord) string { return r.Disposition })}
	colNotes         = Column{"Notes", true, field(func(r *domain.MergedRecord) string { return r.Notes })}
	colNextCall      = Column{"Next Call Date", false, field(func(r *domain.MergedRecord) string { return r.NextCallDate })}
)

// UserColumns is the full user-level export.
var UserColumns = []Column{
	colSerial,
	colUserID,
	colCreatedAt,
	colPhone,
	colFullName,
	{"Skills", true, field(func(r *domain.MergedRecord) string { return strings.Join(r.Skills, ", ") })},
	{"Languages", true, field(func(r *domain.MergedRecord) string { return r.Language.String() })},
	{"Education", true, field(func(r *domain.MergedRecord) string { return r.Education.Summary() })},
	{"Experience", true, field(func(r *domain.MergedRecord) string { return r.Experience.Summary() })},
	{"DOB", false, field(func(r *domain.MergedRecord) string { return domain.Date(r.DOB).Day() })},
	{"Gender", false, field(func(r *domain.MergedRecord) string { return r.Gender })},
	{"Location", true, field(func(r *domain.MergedRecord) string { return r.Location.String() })},
	colApplied,
	colLatestApp,
	colTargetCountry,
	colTargetJobRole,
	colAssignee,
	colDisposition,
	colNotes,
	colNextCall,
}

// MyActivityColumns is the export of the acting recruiter's own records.
var MyActivityColumns = []Column{
	colSerial,
	colUserID,
	colPhone,
	colFullName,
	colApplied,
	colLatestApp,
	colTargetCountry,
	colTargetJobRole,
	colDisposition,
	colNotes,
	colNextCall,
}

// ApplicationColumns is the application-level export.
var ApplicationColumns = []Column{
	{"Application ID", false, field(func(r *domain.MergedRecord) string { return r.ID })},
	colUserID,
	colCreatedAt,
	colFullName,
	colPhone,
	colTargetCountry,
	colTargetJobRole,
	{"Job Title", true, field(jobTitle)},
	{"Company", true, field(company)},
	{"Salary", true, field(salary)},
	colAssignee,
}

// Columns picks the column set for a dataset.
func Columns(d domain.Dataset, mine bool) []Column {
	switch {
	case d == domain.DatasetApplications && mine:
		cols := append([]Column{}, ApplicationColumns...)
		return append(cols, colDisposition, colNotes, colNextCall)
	case d == domain.DatasetApplications:
		return ApplicationColumns
	case mine:
		return MyActivityColumns
	default:
		return UserColumns
	}
}

// Headers returns the header row.
func Headers(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Header
	}
	return out
}

// Row renders record n (1-based) as cell values.
func Row(cols []Column, n int, r *domain.MergedRecord) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Value(n, r)
	}
	return out
}

// WriteCSV writes a header row and one line per record, separated by "\n".
func WriteCSV(w io.Writer, cols []Column, records []domain.MergedRecord) error {
	bw := bufio.NewWriter(w)
	for i, h := range Headers(cols) {
		if i > 0 {
			bw.WriteByte(',')
		}
		writeCell(bw, h, false)
	}
	bw.WriteByte('\n')
	for n := range records {
		for i, c := range cols {
			if i > 0 {
				bw.WriteByte(',')
			}
			writeCell(bw, c.Value(n+1, &records[n]), c.Text)
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func writeCell(w *bufio.Writer, s string, force bool) {
	if !force && !strings.ContainsAny(s, ",\"\r\n") {
		w.WriteString(s)
		return
	}
	w.WriteByte('"')
	w.WriteString(strings.ReplaceAll(s, `"`, `""`))
	w.WriteByte('"')
}

// FileName returns the download name of an export.
func FileName(d domain.Dataset, subset domain.Subset, mine bool, format Format) string {
	var base string
	switch {
	case d == domain.DatasetApplications && mine:
		base = "my-app-activity"
	case d == domain.DatasetApplications:
		if subset == "" {
			subset = domain.SubsetAll
		}
		base = "crm-data-" + string(subset)
	case mine:
		base = "my-user-activity"
	default:
		base = "user-level-data"
	}
	return base + "." + string(format)
}

// stamped is used for S3 keys so repeated exports do not overwrite each
// other.
func stamped(name string, now time.Time) string {
	ext := ""
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name, ext = name[:i], name[i:]
	}
	return name + "-" + now.UTC().Format("20060102T150405Z") + ext
}
