package users

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Role is one of the three flat roles a user can hold. The set is closed:
// ParseRole and UnmarshalText reject anything else.
type Role string

const (
	RoleEmployee Role = "employee" // Sees own projects and assigned tasks
	RoleManager  Role = "manager"  // Creates and manages projects and tasks
	RoleAdmin    Role = "admin"    // Manager rights, only accepted through the admin login
)

var ErrUnknownRole = errors.New("unknown role")

// AllRoles returns every valid role, lowest privilege first.
func AllRoles() []Role {
	return []Role{RoleEmployee, RoleManager, RoleAdmin}
}

// ParseRole converts a wire value into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// Valid reports whether r is one of the three defined roles.
func (r Role) Valid() bool {
	switch r {
	case RoleEmployee, RoleManager, RoleAdmin:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, string(r))
	}
	return []byte(r), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// User is the identity record the backend returns for the authenticated user.
type User struct {
	ID           int       `json:"id"`                    // Backend primary key
	Username     string    `json:"username"`              // Display name, at least 3 characters
	Email        string    `json:"email"`                 // Login identifier
	Role         Role      `json:"role"`                  // One of RoleEmployee, RoleManager, RoleAdmin
	ProfilePic   string    `json:"profile_pic,omitempty"` // URL of the uploaded avatar, if any
	PasswordHash string    `json:"-"`                     // Only held by the dev server, never serialized
	JoinedAt     time.Time `json:"-"`                     // Only held by the dev server
}

// Summary is the trimmed user shape embedded in projects and tasks.
type Summary struct {
	ID         int    `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email,omitempty"`
	ProfilePic string `json:"profile_pic,omitempty"`
}

// Summary returns the embedded representation of u.
func (u *User) Summary() Summary {
	return Summary{ID: u.ID, Username: u.Username, Email: u.Email, ProfilePic: u.ProfilePic}
}

// IsManagerial is true for roles that may create projects and tasks.
func (u *User) IsManagerial() bool {
	return u.Role == RoleManager || u.Role == RoleAdmin
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
