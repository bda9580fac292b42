package processor

import (
	"net/mail"
	"strings"

	"github.com/dshills/docproc-mcp/internal/merge"
	"github.com/dshills/docproc-mcp/pkg/types"
)

// CVTypeID is the registry identifier of the CV processor
const CVTypeID = "cv"

var cvKeywords = []string{
	"ervaring", "opleiding", "vaardigheden", "curriculum vitae",
	"werkervaring", "education", "experience", "skills",
	"competenties", "diploma", "werkgever", "employer",
	"functie", "position", "carrière", "career", "cv", "resume",
}

// CV extracts curricula vitae
type CV struct {
	Base
}

// NewCV creates the CV processor
func NewCV() *CV {
	return &CV{
		Base: NewBase(
			CVTypeID,
			"Curriculum Vitae",
			"CVs and resumes: contact details, work experience, education and skills",
			cvKeywords,
			cvSchema(),
		),
	}
}

func cvSchema() map[string]any {
	work := objectSchema("", map[string]any{
		"job_title":   stringProp("Position held"),
		"company":     stringProp("Employer"),
		"start_date":  stringProp("Start date"),
		"end_date":    stringProp("End date or 'present'"),
		"description": stringProp("Responsibilities and achievements"),
	}, nil)
	edu := objectSchema("", map[string]any{
		"degree":          stringProp("Degree or diploma"),
		"institution":     stringProp("School or university"),
		"graduation_date": stringProp("Graduation date"),
	}, nil)

	return objectSchema("CVData", map[string]any{
		"full_name":       stringProp("Full name of the candidate"),
		"email":           stringProp("Email address"),
		"phone_number":    stringProp("Phone number"),
		"summary":         stringProp("Professional summary or objective"),
		"work_experience": arrayProp("Every position held", work),
		"education":       arrayProp("Every education entry", edu),
		"skills":          arrayProp("Every skill mentioned", map[string]any{"type": "string"}),
	}, nil)
}

func (p *CV) SchemaPrompt(text string) string   { return cvSchemaPrompt(text) }
func (p *CV) FreeformPrompt(text string) string { return cvFreeformPrompt(text) }

// Normalize decodes into CVData, trimming skills and dropping blank ones
func (p *CV) Normalize(data map[string]any) (types.Record, error) {
	return normalizeInto(data, func(cv *types.CVData) {
		if cv.WorkExperience == nil {
			cv.WorkExperience = []types.WorkExperience{}
		}
		if cv.Education == nil {
			cv.Education = []types.Education{}
		}
		skills := make([]string, 0, len(cv.Skills))
		for _, s := range cv.Skills {
			if s = strings.TrimSpace(s); s != "" {
				skills = append(skills, s)
			}
		}
		cv.Skills = skills
	})
}

// MergePolicy deduplicates positions on title and company, education on
// degree and institution, and skills on their text. Duplicates are dropped.
func (p *CV) MergePolicy() merge.Policy {
	return merge.Policy{
		Lists: []merge.ListPolicy{
			{Field: "work_experience", Key: merge.FieldsKey("job_title", "company")},
			{Field: "education", Key: merge.FieldsKey("degree", "institution")},
			{Field: "skills", Key: merge.StringKey},
		},
	}
}

// Validate requires a name and summary plus at least one entry in each list
func (p *CV) Validate(r types.Record) Validation {
	var cv types.CVData
	if err := types.DecodeRecord(r, &cv); err != nil {
		return Validation{Issues: []string{"record is not a CV: " + err.Error()}}
	}

	var issues []string
	if cv.FullName == "" {
		issues = append(issues, "full_name is empty")
	}
	if cv.Summary == "" {
		issues = append(issues, "summary is empty")
	}
	if _, err := mail.ParseAddress(cv.Email); cv.Email != "" && err != nil {
		issues = append(issues, "email is malformed")
	}
	if len(cv.WorkExperience) == 0 {
		issues = append(issues, "no work experience found")
	}
	if len(cv.Education) == 0 {
		issues = append(issues, "no education found")
	}
	if len(cv.Skills) == 0 {
		issues = append(issues, "no skills found")
	}

	return Validation{
		Valid:        len(issues) == 0,
		Completeness: p.Completeness(r),
		Issues:       issues,
	}
}

// Metrics reports list sizes and contact presence
func (p *CV) Metrics(r types.Record) map[string]any {
	var cv types.CVData
	if err := types.DecodeRecord(r, &cv); err != nil {
		return map[string]any{}
	}
	return map[string]any{
		"work_experience_count":      len(cv.WorkExperience),
		"education_count":            len(cv.Education),
		"skills_count":               len(cv.Skills),
		"has_email":                  cv.Email != "",
		"has_phone":                  cv.PhoneNumber != "",
		"has_summary":                cv.Summary != "",
		"estimated_years_experience": len(cv.WorkExperience) * 2,
	}
}
