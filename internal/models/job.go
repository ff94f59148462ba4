package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// JobStatus tracks a job through the shop.
type JobStatus string

const (
	JobStatusQuote        JobStatus = "quote"
	JobStatusApproved     JobStatus = "approved"
	JobStatusInProduction JobStatus = "in_production"
	JobStatusComplete     JobStatus = "complete"
	JobStatusCancelled    JobStatus = "cancelled"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQuote, JobStatusApproved, JobStatusInProduction,
		JobStatusComplete, JobStatusCancelled:
		return true
	}
	return false
}

// Job is a quote or order for a customer. Totals live on the items.
type Job struct {
	ID          int64     `json:"id" db:"id"`
	CustomerID  int64     `json:"customerId" db:"customer_id"`
	JobNumber   string    `json:"jobNumber" db:"job_number"`
	Description string    `json:"description,omitempty" db:"description"`
	Status      JobStatus `json:"status" db:"status"`
	SiteAddress string    `json:"siteAddress,omitempty" db:"site_address"`
	QuoteDate   *time.Time `json:"quoteDate,omitempty" db:"quote_date"`
	DueDate     *time.Time `json:"dueDate,omitempty" db:"due_date"`
	CreatedBy   string    `json:"createdBy" db:"created_by"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
	Items       []JobItem `json:"items,omitempty"`
}

// JobItem is a billable line on a job (a staircase, a rail run, a tread
// order). Deposits are allocated against job items, never whole jobs.
type JobItem struct {
	ID          int64           `json:"id" db:"id"`
	JobID       int64           `json:"jobId" db:"job_id"`
	Description string          `json:"description" db:"description"`
	Quantity    decimal.Decimal `json:"quantity" db:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice" db:"unit_price"`
	TotalAmount decimal.Decimal `json:"totalAmount" db:"total_amount"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
}

// JobNote is a free-form note attached to a job, possibly transcribed
// from a shop-floor voice recording.
type JobNote struct {
	ID         int64     `json:"id" db:"id"`
	JobID      int64     `json:"jobId" db:"job_id"`
	Body       string    `json:"body" db:"body"`
	Source     string    `json:"source" db:"source"` // manual or voice
	Confidence float32   `json:"confidence,omitempty" db:"confidence"`
	CreatedBy  string    `json:"createdBy" db:"created_by"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}
