package models

import (
	"time"
)

// Role keys carried in JWT claims.
const (
	RoleOrgAdmin          = "org_admin"
	RoleAssetManager      = "asset_manager"
	RoleTechnician        = "technician"
	RoleDepartmentManager = "department_manager"
	RoleFinance           = "finance"
	RoleViewer            = "viewer"
)

// ValidRoles defines the available roles in the system
var ValidRoles = []string{
	RoleOrgAdmin,
	RoleAssetManager,
	RoleTechnician,
	RoleDepartmentManager,
	RoleFinance,
	RoleViewer,
}

// RoleDefinition describes a role for the security catalogue.
type RoleDefinition struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Members     int    `json:"members"`
}

// RoleCatalog lists every role in display order.
var RoleCatalog = []RoleDefinition{
	{Key: RoleOrgAdmin, Name: "Global Admin", Description: "Full access to all modules and settings"},
	{Key: RoleAssetManager, Name: "Asset Manager", Description: "Manages asset lifecycle, procurement, and stock"},
	{Key: RoleTechnician, Name: "IT Technician", Description: "Manages maintenance, assignments, and support tickets"},
	{Key: RoleDepartmentManager, Name: "Department Manager", Description: "Read-only view for assets within their department"},
	{Key: RoleFinance, Name: "Finance", Description: "Read-only view for procurement and cost centers"},
	{Key: RoleViewer, Name: "Viewer", Description: "Read-only access"},
}

// User is a staff login account
type User struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FirstName    *string    `json:"first_name,omitempty"`
	LastName     *string    `json:"last_name,omitempty"`
	OrgID        int64      `json:"org_id"`
	Roles        []string   `json:"roles"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

type CreateUserRequest struct {
	Email     string   `json:"email" validate:"required,email"`
	Password  string   `json:"password" validate:"required,min=8"`
	FirstName *string  `json:"first_name,omitempty"`
	LastName  *string  `json:"last_name,omitempty"`
	OrgID     *int64   `json:"org_id,omitempty"` // main tenant only
	Roles     []string `json:"roles" validate:"required,min=1,dive,role"`
}

type UpdateUserRequest struct {
	FirstName *string  `json:"first_name,omitempty"`
	LastName  *string  `json:"last_name,omitempty"`
	OrgID     *int64   `json:"org_id,omitempty"`
	Roles     []string `json:"roles,omitempty" validate:"omitempty,min=1,dive,role"`
	IsActive  *bool    `json:"is_active,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type SignupRequest struct {
	Email     string  `json:"email" validate:"required,email"`
	Password  string  `json:"password" validate:"required,min=8"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

type UpdateProfileRequest struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
}

// Organization is a tenant. Org 1 is the main tenant.
type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type OrganizationRequest struct {
	Name string `json:"name" validate:"required,min=1,max=255"`
}

type OrganizationStats struct {
	OrgID       int64 `json:"org_id"`
	Users       int   `json:"users"`
	People      int   `json:"people"`
	Assets      int   `json:"assets"`
	OpenTickets int   `json:"open_tickets"`
}

// IsValidRole checks if a role is valid
func IsValidRole(role string) bool {
	for _, validRole := range ValidRoles {
		if role == validRole {
			return true
		}
	}
	return false
}

// ValidateRoles checks if all provided roles are valid
func ValidateRoles(roles []string) bool {
	for _, role := range roles {
		if !IsValidRole(role) {
			return false
		}
	}
	return len(roles) > 0
}

func (u *User) HasRole(role string) bool {
	for _, userRole := range u.Roles {
		if userRole == role {
			return true
		}
	}
	return false
}

func (u *User) DisplayName() string {
	switch {
	case u.FirstName != nil && u.LastName != nil:
		return *u.FirstName + " " + *u.LastName
	case u.FirstName != nil:
		return *u.FirstName
	case u.LastName != nil:
		return *u.LastName
	}
	return u.Email
}

// Redacted returns a copy of the user with sensitive fields removed
func (u *User) Redacted() User {
	c := *u
	c.PasswordHash = ""
	return c
}
