package models

import (
	"time"
)

// Roles recognized by the target resolver. User accounts themselves are
// managed by the user subsystem; this package only consumes a projection.
const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
	RoleStaff      = "staff"
	RoleAdmin      = "admin"
)

// User is the projection of a user account needed for target resolution and
// the admin recipient view.
type User struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	Username  string    `bson:"username" json:"username"`
	Email     string    `bson:"email" json:"email"`
	Role      string    `bson:"role" json:"role"`
	Active    bool      `bson:"active" json:"active"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
