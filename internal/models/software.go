package models

import "time"

// SoftwareTitle is a row of v_software_titles_summary.
type SoftwareTitle struct {
	ID             int64     `json:"id"`
	OrgID          int64     `json:"org_id"`
	Name           string    `json:"name"`
	Publisher      *string   `json:"publisher"`
	CountAvailable int       `json:"count_available"`
	CountUtilized  int       `json:"count_utilized"`
	Remaining      int       `json:"remaining"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type CreateSoftwareRequest struct {
	Name      string  `json:"name" validate:"required,max=255"`
	Publisher *string `json:"publisher,omitempty" validate:"omitempty,max=255"`
}

type AddLicensesRequest struct {
	Amount int `json:"amount" validate:"required,gt=0,max=100000"`
}

type AssignLicenseRequest struct {
	PersonID int64 `json:"person_id" validate:"required,gt=0"`
}

// SoftwareAssignment is one seat of a title held by a person.
type SoftwareAssignment struct {
	ID         int64     `json:"id"`
	SoftwareID int64     `json:"software_id"`
	PersonID   int64     `json:"person_id"`
	PersonName string    `json:"person_name"`
	Email      string    `json:"email"`
	AssignedAt time.Time `json:"assigned_at"`
}
