// Package user defines the user entity persisted by the storage layer.
package user

import "time"

// User is a registered account. PasswordHash holds a bcrypt hash; the raw
// password is never persisted or logged.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
