package model

import "time"

// Well-known keys of the persisted client session.
const (
	KeyAuthToken    = "authToken"
	KeyUser         = "user"
	KeyLoginTime    = "loginTime"
	KeyLastActivity = "lastActivity"
)

// PersistedSession is the client state that survives restarts.
type PersistedSession struct {
	Token        string    `json:"authToken"`
	User         User      `json:"user"`
	LoginTime    time.Time `json:"loginTime"`
	LastActivity time.Time `json:"lastActivity"`
}

// Valid reports whether the session carries enough to authenticate.
func (p PersistedSession) Valid() bool {
	return p.Token != "" && p.User.ID != ""
}
