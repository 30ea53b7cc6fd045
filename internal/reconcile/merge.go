package reconcile

import (
	"github.com/lherron/crmq/internal/domain"
)

// MergeUser combines a candidate with its overlay rows. Any row may be nil.
// An overlay value wins when it is present; empty strings and empty lists
// count as absent. Inputs are not modified.
func MergeUser(c domain.Candidate, p *domain.OverrideProfile, a *domain.OverrideCrmAnnotation, as *domain.Assignment) domain.MergedRecord {
	uid := c.ID.String()
	r := domain.MergedRecord{
		Dataset:               domain.DatasetUsers,
		ID:                    uid,
		UserID:                uid,
		PhoneNumber:           c.PhoneNumber,
		FullName:              c.FullName,
		HasApplied:            c.HasApplied,
		LatestApplicationDate: c.LatestApplicationDate,
		CreatedAt:             c.CreatedAt,
		TargetCountry:         c.TargetCountry.Name,
		TargetJobRole:         c.TargetJobRole.Name,
		TargetCountryID:       c.TargetCountry.ID,
		TargetJobRoleID:       c.TargetJobRole.ID,
		Assignee:              c.CrmData.Assignee,
		Disposition:           c.CrmData.CallDisposition,
		Notes:                 c.CrmData.Notes,
		NextCallDate:          c.CrmData.NextCallDate.Day(),
	}
	copyProfile(&r, c.Profile)
	applyOverrides(&r, p, a, as)
	return r
}

// MergeApplication combines an application with the overlay rows of its
// candidate. Profile fields come from the joined user document first, then
// from the application itself.
func MergeApplication(app domain.Application, p *domain.OverrideProfile, a *domain.OverrideCrmAnnotation, as *domain.Assignment) domain.MergedRecord {
	r := domain.MergedRecord{
		Dataset:         domain.DatasetApplications,
		ID:              app.ID.String(),
		UserID:          app.CandidateID().String(),
		PhoneNumber:     app.PhoneNumber,
		FullName:        app.FullName,
		CreatedAt:       app.CreatedAt,
		TargetCountry:   app.TargetCountry.Name,
		TargetJobRole:   app.TargetJobRole.Name,
		TargetCountryID: app.TargetCountry.ID,
		TargetJobRoleID: app.TargetJobRole.ID,
		JobTitle:        app.JobTitle,
		CompanyName:     app.CompanyName,
		JobSnapshot:     app.JobSnapshot,
		Assignee:        app.CrmData.Assignee,
		Disposition:     app.CrmData.CallDisposition,
		Notes:           app.CrmData.Notes,
		NextCallDate:    app.CrmData.NextCallDate.Day(),
		HasApplied:      true,
	}
	if snap := app.JobSnapshot; snap != nil {
		r.JobTitle = firstString(r.JobTitle, snap.Title)
		r.CompanyName = firstString(r.CompanyName, snap.Company.Name)
	}

	profile := app.Profile
	if u := app.User.Candidate; u != nil {
		profile = preferProfile(u.Profile, app.Profile)
		r.FullName = firstString(r.FullName, u.FullName)
		r.PhoneNumber = firstString(r.PhoneNumber, u.PhoneNumber)
		if r.TargetCountry == "" {
			r.TargetCountry, r.TargetCountryID = u.TargetCountry.Name, u.TargetCountry.ID
		}
		if r.TargetJobRole == "" {
			r.TargetJobRole, r.TargetJobRoleID = u.TargetJobRole.Name, u.TargetJobRole.ID
		}
	}
	copyProfile(&r, profile)
	applyOverrides(&r, p, a, as)
	return r
}

func applyOverrides(r *domain.MergedRecord, p *domain.OverrideProfile, a *domain.OverrideCrmAnnotation, as *domain.Assignment) {
	if p != nil {
		if len(p.Skills) > 0 {
			r.Skills = cloneStrings(p.Skills)
		}
		if !p.Language.IsZero() {
			r.Language = cloneLanguage(p.Language)
		}
		if len(p.Education) > 0 {
			r.Education = append(domain.EducationList(nil), p.Education...)
		}
		if len(p.Experience) > 0 {
			r.Experience = append(domain.ExperienceList(nil), p.Experience...)
		}
		r.DOB = firstString(p.DOB, r.DOB)
		r.Gender = firstString(p.Gender, r.Gender)
		if !p.Location.IsZero() {
			loc := *p.Location
			r.Location = &loc
		}
		if p.InternationalExp != nil {
			r.InternationalExp = cloneFloat(p.InternationalExp)
		}
		if p.DomesticExp != nil {
			r.DomesticExp = cloneFloat(p.DomesticExp)
		}
	}

	if a != nil {
		r.FullName = firstString(a.FullName, r.FullName)
		if a.TargetCountry != "" {
			r.TargetCountry, r.TargetCountryID = a.TargetCountry, a.TargetCountryID
		}
		if a.TargetJobRole != "" {
			r.TargetJobRole, r.TargetJobRoleID = a.TargetJobRole, a.TargetJobRoleID
		}
		r.Disposition = firstString(a.CallDisposition, r.Disposition)
		r.Notes = firstString(a.Notes, r.Notes)
		if a.NextCallDate != "" {
			r.NextCallDate = domain.Date(a.NextCallDate).Day()
		}
	}

	if as != nil {
		r.Assignee = firstString(as.AssignedTo, r.Assignee)
	}
}

func copyProfile(r *domain.MergedRecord, p domain.Profile) {
	r.PassportNumber = p.PassportNumber
	r.DOB = string(p.DOB)
	r.Gender = p.Gender
	r.ExperienceType = p.ExperienceType
	if p.Location != nil {
		loc := *p.Location
		r.Location = &loc
	}
	r.SecondaryCountries = append([]domain.NamedRef(nil), p.SecondaryCountries...)
	r.SecondaryJobRoles = append([]domain.NamedRef(nil), p.SecondaryJobRoles...)
	r.Skills = cloneStrings(p.Skills)
	r.Language = cloneLanguage(p.Language)
	r.Education = append(domain.EducationList(nil), p.Education...)
	r.Experience = append(domain.ExperienceList(nil), p.Experience...)
	r.InternationalExp = cloneFloat(p.InternationalExp)
	r.DomesticExp = cloneFloat(p.DomesticExp)
}

// preferProfile takes each field from primary when set, otherwise from fallback.
func preferProfile(primary, fallback domain.Profile) domain.Profile {
	out := primary
	out.PassportNumber = firstString(primary.PassportNumber, fallback.PassportNumber)
	if primary.DOB == "" {
		out.DOB = fallback.DOB
	}
	out.Gender = firstString(primary.Gender, fallback.Gender)
	out.ExperienceType = firstString(primary.ExperienceType, fallback.ExperienceType)
	if primary.Location.IsZero() {
		out.Location = fallback.Location
	}
	if len(primary.SecondaryCountries) == 0 {
		out.SecondaryCountries = fallback.SecondaryCountries
	}
	if len(primary.SecondaryJobRoles) == 0 {
		out.SecondaryJobRoles = fallback.SecondaryJobRoles
	}
	if len(primary.Skills) == 0 {
		out.Skills = fallback.Skills
	}
	if primary.Language.IsZero() {
		out.Language = fallback.Language
	}
	if len(primary.Education) == 0 {
		out.Education = fallback.Education
	}
	if len(primary.Experience) == 0 {
		out.Experience = fallback.Experience
	}
	if primary.InternationalExp == nil {
		out.InternationalExp = fallback.InternationalExp
	}
	if primary.DomesticExp == nil {
		out.DomesticExp = fallback.DomesticExp
	}
	return out
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneLanguage(l *domain.Language) *domain.Language {
	if l == nil {
		return nil
	}
	out := *l
	out.Other = cloneStrings(l.Other)
	return &out
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
