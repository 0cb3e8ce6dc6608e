package model

import "encoding/json"

// User is the authenticated identity returned by login and register.
type User struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UnmarshalJSON accepts either "_id" or "id" as the identity field.
func (u *User) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID    string `json:"_id"`
		AltID string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	u.ID = raw.ID
	if u.ID == "" {
		u.ID = raw.AltID
	}
	u.Name = raw.Name
	u.Email = raw.Email
	return nil
}

// UserRef is a user as embedded in board membership.
type UserRef = User

// Credentials is the login body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the signup body.
type Registration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult is returned by login and register.
type AuthResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
