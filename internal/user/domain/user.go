package domain

import (
	"errors"
	"strings"
)

// Type is the user's role in the school.
type Type string

const (
	TypeStudent Type = "student"
	TypeTeacher Type = "teacher"
	TypeAdmin   Type = "admin"
)

// Valid reports whether t is a known user type.
func (t Type) Valid() bool {
	switch t {
	case TypeStudent, TypeTeacher, TypeAdmin:
		return true
	}
	return false
}

// User is the core user entity.
type User struct {
	ID           int64
	Username     string
	Firstname    string
	Lastname     string
	Type         Type
	PasswordHash string
	Active       bool
}

// DisplayName returns "Firstname Lastname", falling back to the username.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.Firstname + " " + u.Lastname)
	if name == "" {
		return u.Username
	}
	return name
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if strings.TrimSpace(u.Username) == "" {
		return errors.New("username is required")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if u.Type == "" {
		u.Type = TypeStudent
	}
	if !u.Type.Valid() {
		return errors.New("unknown user type")
	}
	return nil
}
