package types

// CVData is the canonical CV record
type CVData struct {
	FullName       string           `json:"full_name"`
	Email          string           `json:"email"`
	PhoneNumber    string           `json:"phone_number"`
	Summary        string           `json:"summary"`
	WorkExperience []WorkExperience `json:"work_experience"`
	Education      []Education      `json:"education"`
	Skills         []string         `json:"skills"`
}

// WorkExperience is one position held
type WorkExperience struct {
	JobTitle    string `json:"job_title"`
	Company     string `json:"company"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Description string `json:"description"`
}

// Education is one completed or ongoing study
type Education struct {
	Degree         string `json:"degree"`
	Institution    string `json:"institution"`
	GraduationDate string `json:"graduation_date"`
}
