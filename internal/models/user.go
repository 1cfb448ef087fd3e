package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleLearner Role = "learner"
	RoleAdmin   Role = "admin"
)

// User is the read model of an employee. Accounts are provisioned by the
// identity service; this service only reads them.
type User struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Role      Role        `json:"role"`
	TrackIDs  []uuid.UUID `json:"track_ids"`
	CreatedAt time.Time   `json:"created_at"`
}
