package session

import "errors"

var (
	// ErrSessionNotFound reports a chat or lookup against a username with no
	// live session: never logged in, logged out, or evicted. The caller
	// should log in again.
	ErrSessionNotFound = errors.New("session not found")

	// ErrUnauthenticated reports a rejected login. Terminal for the attempt;
	// callers never learn whether the username or the password was wrong.
	ErrUnauthenticated = errors.New("invalid username or password")
)
