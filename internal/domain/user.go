package domain

import "time"

// UserRole enumerates the two account roles.
type UserRole string

const (
	UserRoleAdmin      UserRole = "Admin"
	UserRoleContractor UserRole = "Contractor"
)

// User models an account that owns and manages tickets.
type User struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	Role         UserRole
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FullName returns the display name.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}
