package models

import "github.com/google/uuid"

type User struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Password string    `json:"password,omitempty"`

	// DisplayID is the user-facing handle; DisplayIDLower is its folded
	// copy, kept in step for case-insensitive lookups.
	DisplayID      string `json:"displayId"`
	DisplayIDLower string `json:"displayIdLower"`
}
