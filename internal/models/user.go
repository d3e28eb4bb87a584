package models

import (
	"fmt"
	"time"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleTeacher UserRole = "TEACHER"
	RoleStudent UserRole = "STUDENT"
)

// Valid reports whether the role is one of the supported roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	}
	return false
}

// User represents an application user stored in the users table. Students and
// teachers are users with the matching role.
type User struct {
	ID           string     `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FirstName    string     `db:"first_name" json:"first_name"`
	LastName     string     `db:"last_name" json:"last_name"`
	Role         UserRole   `db:"role" json:"role"`
	NationalID   *string    `db:"national_id" json:"national_id,omitempty"`
	Phone        *string    `db:"phone" json:"phone,omitempty"`
	Address      *string    `db:"address" json:"address,omitempty"`
	Instrument   *string    `db:"instrument" json:"instrument,omitempty"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName joins first and last name, falling back to the username.
func (u User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return fmt.Sprintf("%s %s", u.FirstName, u.LastName)
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	}
	return u.Username
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// CreateUserRequest is the admin payload for registering a user.
type CreateUserRequest struct {
	Username   string   `json:"username" validate:"required,min=3,max=150"`
	Email      string   `json:"email" validate:"required,email"`
	Password   string   `json:"password" validate:"required,min=6"`
	FirstName  string   `json:"first_name" validate:"required,max=150"`
	LastName   string   `json:"last_name" validate:"max=150"`
	Role       UserRole `json:"role" validate:"required,user_role"`
	NationalID *string  `json:"national_id" validate:"omitempty,max=20"`
	Phone      *string  `json:"phone" validate:"omitempty,max=20"`
	Address    *string  `json:"address" validate:"omitempty,max=255"`
	Instrument *string  `json:"instrument" validate:"omitempty,max=100"`
	Active     *bool    `json:"active"`
}

// UpdateUserRequest carries partial updates; nil fields are left unchanged.
type UpdateUserRequest struct {
	Username   *string   `json:"username" validate:"omitempty,min=3,max=150"`
	Email      *string   `json:"email" validate:"omitempty,email"`
	Password   *string   `json:"password" validate:"omitempty,min=6"`
	FirstName  *string   `json:"first_name" validate:"omitempty,max=150"`
	LastName   *string   `json:"last_name" validate:"omitempty,max=150"`
	Role       *UserRole `json:"role" validate:"omitempty,user_role"`
	NationalID *string   `json:"national_id" validate:"omitempty,max=20"`
	Phone      *string   `json:"phone" validate:"omitempty,max=20"`
	Address    *string   `json:"address" validate:"omitempty,max=255"`
	Instrument *string   `json:"instrument" validate:"omitempty,max=100"`
	Active     *bool     `json:"active"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
