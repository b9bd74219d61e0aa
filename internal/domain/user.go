package domain

import "time"

// User represents an authenticated account. It is created on the first
// request carrying a previously unseen external subject.
type User struct {
	ID        string
	Subject   string
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
