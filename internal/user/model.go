package user

import "time"

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateUserRequest payload of registration.
// swagger:model CreateUserRequest
type CreateUserRequest struct {
	Username string `json:"username" example:"mvega"`
	Email    string `json:"email"    example:"mvega@example.com"`
	Password string `json:"password" example:"s3cret"`
}
