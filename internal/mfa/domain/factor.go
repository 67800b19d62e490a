package domain

import "time"

// TypeTOTP is the only second factor type.
const TypeTOTP = "TOTP"

// Factor is an enrolled second factor (stored in second_factors). It counts for login only once Verified.
type Factor struct {
	ID        string
	UserID    int64
	Type      string
	Secret    string
	Verified  bool
	CreatedAt time.Time
}
