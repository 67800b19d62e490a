package domain

import "time"

// AuditLog represents an audit event. UserID is 0 when no user is known (e.g. a failed login).
type AuditLog struct {
	ID        string
	UserID    int64
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
