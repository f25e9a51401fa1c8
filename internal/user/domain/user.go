package domain

import (
	"errors"
	"time"
)

// User is an account holder. PasswordHash is a bcrypt hash and never leaves the server.
type User struct {
	ID           string
	FullName     string
	Email        string
	PhoneNumber  string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	switch {
	case u.ID == "":
		return errors.New("id is required")
	case u.Email == "":
		return errors.New("email is required")
	case u.FullName == "":
		return errors.New("full name is required")
	case u.PhoneNumber == "":
		return errors.New("phone number is required")
	case u.PasswordHash == "":
		return errors.New("password hash is required")
	}
	return nil
}
