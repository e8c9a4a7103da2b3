package geofence

import "crypto/subtle"

// Authenticator decides whether a login carries admin credentials. It never
// rejects a login; a false answer only means the session becomes a user.
type Authenticator interface {
	IsAdmin(email, password string) bool
}

// StaticCredentials matches one configured admin pair exactly
// (case-sensitive, plaintext).
type StaticCredentials struct {
	Email    string
	Password string
}

// IsAdmin implements Authenticator.
func (c StaticCredentials) IsAdmin(email, password string) bool {
	if c.Email == "" {
		return false
	}
	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(c.Email)) == 1
	passwordOK := subtle.ConstantTimeCompare([]byte(password), []byte(c.Password)) == 1
	return emailOK && passwordOK
}
