package render

import (
	"github.com/lherron/crmq/internal/domain"
)

// RecordTable returns the list columns for merged records. Missing details
// are flagged with a "!" after the name.
func RecordTable(dataset domain.Dataset, records []domain.MergedRecord) ([]string, [][]string) {
	headers := []string{"ID", "NAME", "PHONE", "COUNTRY", "JOB ROLE", "ASSIGNEE", "DISPOSITION", "NEXT CALL"}
	if dataset == domain.DatasetApplications {
		headers = append(headers, "USER", "JOB")
	}
	rows := make([][]string, 0, len(records))
	for i := range records {
		r := &records[i]
		name := r.FullName
		if r.MissingDetails() {
			name += " !"
		}
		row := []string{
			r.ID,
			name,
			r.PhoneNumber,
			orDash(r.TargetCountry),
			orDash(r.TargetJobRole),
			orDash(r.Assignee),
			orDash(r.Disposition),
			orDash(r.NextCallDate),
		}
		if dataset == domain.DatasetApplications {
			row = append(row, r.UserID, orDash(r.JobTitle))
		}
		rows = append(rows, row)
	}
	return headers, rows
}

// RefTable lists named references such as countries and job roles.
func RefTable(refs []domain.NamedRef) ([]string, [][]string) {
	rows := make([][]string, 0, len(refs))
	for _, r := range refs {
		rows = append(rows, []string{r.ID, r.Name})
	}
	return []string{"ID", "NAME"}, rows
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
