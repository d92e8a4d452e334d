// Package auth validates client credentials against a static user store and
// answers per-action permission checks.
package auth

import (
	"cmp"
	"crypto/subtle"
	"slices"
)

// Permission is an action a user may be granted.
type Permission string

const (
	// Read allows subscribing and receiving published messages.
	Read Permission = "read"

	// Write allows publishing.
	Write Permission = "write"
)

// User is one entry of the user store. Passwords are compared in plaintext.
type User struct {
	Username    string       `json:"username" yaml:"username"`
	Password    string       `json:"password" yaml:"password"`
	Permissions []Permission `json:"permissions" yaml:"permissions"`
}

// Can reports whether the user holds p.
func (u User) Can(p Permission) bool {
	return slices.Contains(u.Permissions, p)
}

// Service answers authentication and permission queries.
// It is immutable after construction and safe for concurrent use.
type Service struct {
	users          map[string]User
	allowAnonymous bool
}

// New creates a Service over users. Later entries replace earlier ones with the
// same username. When allowAnonymous is set every check succeeds.
func New(users []User, allowAnonymous bool) *Service {
	m := make(map[string]User, len(users))
	for _, u := range users {
		u.Permissions = slices.Clone(u.Permissions)
		m[u.Username] = u
	}
	return &Service{users: m, allowAnonymous: allowAnonymous}
}

// Authenticate checks the credentials presented in CONNECT. The password must
// equal the stored one exactly, empty included. An empty username is treated
// as absent.
func (s *Service) Authenticate(clientID, username, password string) bool {
	if s.allowAnonymous {
		return true
	}
	if username == "" {
		return false
	}
	u, ok := s.users[username]
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(u.Password)) == 1
}

// HasPermission reports whether username may perform p.
func (s *Service) HasPermission(username string, p Permission) bool {
	if s.allowAnonymous {
		return true
	}
	u, ok := s.users[username]
	return ok && u.Can(p)
}

// AllowAnonymous reports whether anonymous mode is enabled.
func (s *Service) AllowAnonymous() bool {
	return s.allowAnonymous
}

// Users returns the configured users sorted by name.
func (s *Service) Users() []User {
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b User) int {
		return cmp.Compare(a.Username, b.Username)
	})
	return out
}
