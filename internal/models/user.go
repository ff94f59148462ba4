package models

import "time"

type User struct {
	ID        int        `json:"id" example:"1"`                   // User ID
	Email     string     `json:"email" example:"user@example.com"` // User email
	FirstName string     `json:"firstName" example:"John"`         // User first name
	LastName  string     `json:"lastName" example:"Doe"`           // User last name
	Role      string     `json:"role" example:"office"`            // office, shop, admin
	LastLogin *time.Time `json:"lastLogin,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}
