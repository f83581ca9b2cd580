package models

// Patient is a registered patient. PatientNumber is the hospital-issued
// identifier (MRN) used, with Phone and Email, for deduplication.
type Patient struct {
	Record
	PatientNumber string     `json:"patientNumber,omitempty" validate:"omitempty,max=32"`
	FirstName     string     `json:"firstName" validate:"required,max=100"`
	MiddleName    string     `json:"middleName,omitempty" validate:"omitempty,max=100"`
	LastName      string     `json:"lastName" validate:"required,max=100"`
	DateOfBirth   string     `json:"dateOfBirth,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Gender        string     `json:"gender,omitempty" validate:"omitempty,oneof=male female other unknown"`
	Phone         string     `json:"phone,omitempty" validate:"omitempty,max=20"`
	Email         string     `json:"email,omitempty" validate:"omitempty,email"`
	Address       string     `json:"address,omitempty"`
	BloodGroup    string     `json:"bloodGroup,omitempty" validate:"omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
	Genotype      string     `json:"genotype,omitempty" validate:"omitempty,oneof=AA AS AC SS SC"`
	NextOfKin     *NextOfKin `json:"nextOfKin,omitempty"`
	BranchID      string     `json:"branchId,omitempty"`
}

type NextOfKin struct {
	Name         string `json:"name" validate:"required"`
	Relationship string `json:"relationship,omitempty"`
	Phone        string `json:"phone,omitempty" validate:"omitempty,max=20"`
}

// FullName joins the non-empty name parts.
func (p *Patient) FullName() string {
	name := p.FirstName
	if p.MiddleName != "" {
		name += " " + p.MiddleName
	}
	if p.LastName != "" {
		name += " " + p.LastName
	}
	return name
}
