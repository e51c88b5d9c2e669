// Package credential loads the ordered set of accounts a run logs in with.
package credential

import (
	"errors"
	"strings"
)

var (
	// ErrNoCredentials is returned when a source yields no credentials.
	ErrNoCredentials = errors.New("no credentials available")

	// ErrSampleCreated is returned after a sample file was written in place
	// of a missing credentials file.
	ErrSampleCreated = errors.New("sample credentials file created")

	// ErrInvalidUsername is returned when a credential has no username.
	ErrInvalidUsername = errors.New("username is required")

	// ErrInvalidPassword is returned when a credential has no password.
	ErrInvalidPassword = errors.New("password is required")

	// ErrDuplicateID is returned when two credential sets share a key.
	ErrDuplicateID = errors.New("duplicate credential id")

	// ErrWrongPassphrase is returned when a sealed file cannot be opened.
	ErrWrongPassphrase = errors.New("sealed credentials could not be opened")
)

// Credential is one account. ID is the key of the set in its source.
type Credential struct {
	ID       string
	Username string
	Password string
}

// Validate checks that the credential can be used to log in.
func (c Credential) Validate() error {
	if strings.TrimSpace(c.Username) == "" {
		return ErrInvalidUsername
	}
	if c.Password == "" {
		return ErrInvalidPassword
	}
	return nil
}

// String never includes the password.
func (c Credential) String() string {
	return c.ID + "(" + c.Username + ")"
}

// entry is the on-disk shape of a single credential set.
type entry struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}
