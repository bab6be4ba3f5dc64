package dto

// CreateSubjectRequest captures fields for creating subjects.
type CreateSubjectRequest struct {
	Number    string `json:"number" validate:"required,subject_number"`
	Name      string `json:"name" validate:"required,notblank"`
	BirthDate string `json:"birthDate" validate:"required,datetime=2006-01-02"`
	CenterID  string `json:"centerId" validate:"required"`
}

// UpdateSubjectRequest carries a partial subject update. Absent fields are left untouched.
type UpdateSubjectRequest struct {
	Number    Optional[string] `json:"number" swaggertype:"string"`
	Name      Optional[string] `json:"name" swaggertype:"string"`
	BirthDate Optional[string] `json:"birthDate" swaggertype:"string"`
	CenterID  Optional[string] `json:"centerId" swaggertype:"string"`
}

// SubjectPatch is the validated view of an UpdateSubjectRequest.
type SubjectPatch struct {
	Number    *string `validate:"omitempty,subject_number"`
	Name      *string `validate:"omitempty,notblank"`
	BirthDate *string `validate:"omitempty,datetime=2006-01-02"`
	CenterID  *string `validate:"omitempty,min=1"`
}

// NullFields lists fields explicitly set to null.
func (r UpdateSubjectRequest) NullFields() []string {
	var fields []string
	for _, f := range []struct {
		name string
		null bool
	}{
		{"number", r.Number.Set && r.Number.Null},
		{"name", r.Name.Set && r.Name.Null},
		{"birthDate", r.BirthDate.Set && r.BirthDate.Null},
		{"centerId", r.CenterID.Set && r.CenterID.Null},
	} {
		if f.null {
			fields = append(fields, f.name)
		}
	}
	return fields
}

// Patch converts the request to its pointer form.
func (r UpdateSubjectRequest) Patch() SubjectPatch {
	return SubjectPatch{
		Number:    r.Number.Ptr(),
		Name:      r.Name.Ptr(),
		BirthDate: r.BirthDate.Ptr(),
		CenterID:  r.CenterID.Ptr(),
	}
}
