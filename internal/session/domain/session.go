package domain

import "time"

// Session is one stored login. A token is only accepted while its session row exists.
type Session struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
}
