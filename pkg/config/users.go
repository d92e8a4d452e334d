package config

import (
	"fmt"

	"github.com/bromq-dev/minibroker/pkg/auth"
)

// UserStore is the on-disk shape of the user file.
type UserStore struct {
	Users []auth.User `json:"users" yaml:"users"`
}

// DefaultUsers returns the users used when no user file can be read.
func DefaultUsers() []auth.User {
	return []auth.User{
		{Username: "user", Password: "password", Permissions: []auth.Permission{auth.Read, auth.Write}},
		{Username: "test", Password: "test123", Permissions: []auth.Permission{auth.Read, auth.Write}},
	}
}

// LoadUsers reads a JSON or YAML user store.
func LoadUsers(path string) ([]auth.User, error) {
	var store UserStore
	if err := decodeFile(path, &store); err != nil {
		return nil, err
	}
	for i, u := range store.Users {
		if u.Username == "" {
			return nil, fmt.Errorf("%w: users[%d] has no username", ErrInvalidConfig, i)
		}
	}
	return store.Users, nil
}
