package models

import "time"

// Person kinds. Managers are never managed by anyone.
const (
	PersonGeneralUser = "General User"
	PersonManager     = "Manager"
)

var PersonTypes = []string{PersonGeneralUser, PersonManager}

// Department is a row of v_departments_with_counts.
type Department struct {
	ID          int64     `json:"id"`
	OrgID       int64     `json:"org_id"`
	Name        string    `json:"name"`
	Code        *string   `json:"code,omitempty"`
	PeopleCount int       `json:"people_count"`
	AssetCount  int       `json:"asset_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type DepartmentRequest struct {
	Name string  `json:"name" validate:"required,max=255"`
	Code *string `json:"code,omitempty" validate:"omitempty,max=64"`
}

// Person is an employee who can hold assets and licenses. Not a login account.
type Person struct {
	ID             int64     `json:"id"`
	OrgID          int64     `json:"org_id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Email          string    `json:"email"`
	DepartmentID   *int64    `json:"department_id"`
	DepartmentName *string   `json:"department_name"`
	UserType       string    `json:"user_type"`
	ManagedBy      *int64    `json:"managed_by"`
	ManagerName    *string   `json:"manager_name"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (p Person) FullName() string {
	return p.FirstName + " " + p.LastName
}

type CreatePersonRequest struct {
	FirstName    string `json:"first_name" validate:"required,max=100"`
	LastName     string `json:"last_name" validate:"required,max=100"`
	Email        string `json:"email" validate:"required,max=255"`
	DepartmentID *int64 `json:"department_id,omitempty" validate:"omitempty,gt=0"`
	UserType     string `json:"user_type" validate:"omitempty,user_type"`
	ManagedBy    *int64 `json:"managed_by,omitempty" validate:"omitempty,gt=0"`
}

type UpdatePersonRequest struct {
	FirstName    *string `json:"first_name,omitempty" validate:"omitempty,max=100"`
	LastName     *string `json:"last_name,omitempty" validate:"omitempty,max=100"`
	Email        *string `json:"email,omitempty" validate:"omitempty,max=255"`
	DepartmentID *int64  `json:"department_id,omitempty" validate:"omitempty,gt=0"`
	UserType     *string `json:"user_type,omitempty" validate:"omitempty,user_type"`
	ManagedBy    *int64  `json:"managed_by,omitempty" validate:"omitempty,gt=0"`
	IsActive     *bool   `json:"is_active,omitempty"`
}
