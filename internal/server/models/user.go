package models

import "time"

// User is the persisted identity record. At most one row exists per
// username; Token always holds the most recently issued bearer token (older
// tokens stop verifying against the stored record the moment it is
// overwritten).
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Token     string    `json:"token,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// PublicUser is the token-free projection of a user that is safe to put on
// the wire: presence lists and expanded message participants.
type PublicUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// ConnectedUser is an ephemeral presence entry. It lives only in the
// presence registry and is never persisted.
type ConnectedUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Token    string `json:"token,omitempty"`
}

// Public strips the token from a presence entry.
func (u ConnectedUser) Public() PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username}
}
