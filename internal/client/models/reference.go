package models

// Reference records are read-only copies of authority data. They carry no
// sync metadata and are replaced wholesale on every pull.

type Staff struct {
	ID         string `json:"id"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	RoleID     string `json:"roleId,omitempty"`
	BranchID   string `json:"branchId,omitempty"`
	Department string `json:"department,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

type Hospital struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

type Branch struct {
	ID         string `json:"id"`
	HospitalID string `json:"hospitalId"`
	Name       string `json:"name"`
	Address    string `json:"address,omitempty"`
}

type Role struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions,omitempty"`
}

func (s *Staff) GetID() string    { return s.ID }
func (h *Hospital) GetID() string { return h.ID }
func (b *Branch) GetID() string   { return b.ID }
func (r *Role) GetID() string     { return r.ID }
