package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer is a billing customer (homeowner, builder, or GC).
type Customer struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Company   string    `json:"company,omitempty" db:"company"`
	Email     string    `json:"email,omitempty" db:"email"`
	Phone     string    `json:"phone,omitempty" db:"phone"`
	Address   string    `json:"address,omitempty" db:"address"`
	City      string    `json:"city,omitempty" db:"city"`
	State     string    `json:"state,omitempty" db:"state"`
	Zip       string    `json:"zip,omitempty" db:"zip"`
	Notes     string    `json:"notes,omitempty" db:"notes"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// CustomerBalance summarizes a customer's position across all jobs.
type CustomerBalance struct {
	CustomerID     int64           `json:"customerId"`
	JobTotal       decimal.Decimal `json:"jobTotal"`
	AllocatedTotal decimal.Decimal `json:"allocatedTotal"`
	OpenBalance    decimal.Decimal `json:"openBalance"`
}
