package auth

import (
	"slices"

	userdomain "splan/backend/internal/user/domain"
)

// Identity is the verified caller attached to a request.
type Identity struct {
	UserID      int64
	UserType    string
	SessionID   string
	Permissions []string
	User        *userdomain.User
}

// Can reports whether the identity holds permission p.
func (i *Identity) Can(p string) bool {
	return i != nil && slices.Contains(i.Permissions, p)
}
