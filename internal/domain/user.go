package domain

import "time"

// User represents a renter or vehicle owner.
type User struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Phone     string
	City      string
	Tier      string
	CreatedAt time.Time
}
