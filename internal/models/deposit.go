package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod enumerates how a customer paid a deposit.
type PaymentMethod string

const (
	PaymentMethodCheck      PaymentMethod = "check"
	PaymentMethodCash       PaymentMethod = "cash"
	PaymentMethodCreditCard PaymentMethod = "credit_card"
	PaymentMethodACH        PaymentMethod = "ach"
	PaymentMethodWire       PaymentMethod = "wire"
	PaymentMethodOther      PaymentMethod = "other"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCheck, PaymentMethodCash, PaymentMethodCreditCard,
		PaymentMethodACH, PaymentMethodWire, PaymentMethodOther:
		return true
	}
	return false
}

// DepositStatus is derived from the allocated amount, never stored.
type DepositStatus string

const (
	DepositStatusUnallocated DepositStatus = "unallocated"
	DepositStatusPartial     DepositStatus = "partial"
	DepositStatusAllocated   DepositStatus = "allocated"
)

// DeriveDepositStatus computes the status from the two amounts.
func DeriveDepositStatus(totalAmount, allocatedAmount decimal.Decimal) DepositStatus {
	switch {
	case allocatedAmount.IsZero():
		return DepositStatusUnallocated
	case allocatedAmount.LessThan(totalAmount):
		return DepositStatusPartial
	default:
		return DepositStatusAllocated
	}
}

// Deposit is a recorded customer payment. Created once; the engine never
// mutates it afterwards.
type Deposit struct {
	ID              int64           `json:"id" db:"id"`
	CustomerID      int64           `json:"customerId" db:"customer_id"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod" db:"payment_method"`
	ReferenceNumber string          `json:"referenceNumber,omitempty" db:"reference_number"`
	PaymentDate     *time.Time      `json:"paymentDate,omitempty" db:"payment_date"`
	TotalAmount     decimal.Decimal `json:"totalAmount" db:"total_amount"`
	DepositDate     time.Time       `json:"depositDate" db:"deposit_date"`
	Notes           string          `json:"notes,omitempty" db:"notes"`
	CreatedBy       string          `json:"createdBy" db:"created_by"`
	CreatedAt       time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time       `json:"updatedAt" db:"updated_at"`
}

// DepositAllocation applies a portion of a deposit to one job item.
// Immutable once created.
type DepositAllocation struct {
	ID             int64           `json:"id" db:"id"`
	DepositID      int64           `json:"depositId" db:"deposit_id"`
	JobID          int64           `json:"jobId" db:"job_id"`
	JobItemID      int64           `json:"jobItemId" db:"job_item_id"`
	JobItemTitle   string          `json:"jobItemTitle,omitempty" db:"job_item_title"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	AllocationDate *time.Time      `json:"allocationDate,omitempty" db:"allocation_date"`
	Notes          string          `json:"notes,omitempty" db:"notes"`
	CreatedBy      string          `json:"createdBy" db:"created_by"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
}

// JobItemBalance is the read-only projection of a job item's total versus
// what has already been allocated to it across every deposit.
type JobItemBalance struct {
	ID          int64           `json:"id" db:"id"`
	JobID       int64           `json:"jobId" db:"job_id"`
	CustomerID  int64           `json:"customerId" db:"customer_id"`
	TotalAmount decimal.Decimal `json:"totalAmount" db:"total_amount"`
	Allocated   decimal.Decimal `json:"allocated" db:"allocated"`
}

func (b JobItemBalance) Remaining() decimal.Decimal {
	return b.TotalAmount.Sub(b.Allocated)
}

// DepositDetail is the full read model returned to callers: the deposit,
// its allocations, and the derived balance.
type DepositDetail struct {
	Deposit
	CustomerName      string              `json:"customerName"`
	AllocatedAmount   decimal.Decimal     `json:"allocatedAmount"`
	UnallocatedAmount decimal.Decimal     `json:"unallocatedAmount"`
	Status            DepositStatus       `json:"status"`
	Allocations       []DepositAllocation `json:"allocations"`
}

// DepositListItem is the row shape for deposit listings.
type DepositListItem struct {
	ID                int64           `json:"id"`
	CustomerID        int64           `json:"customerId"`
	CustomerName      string          `json:"customerName"`
	PaymentMethod     PaymentMethod   `json:"paymentMethod"`
	ReferenceNumber   string          `json:"referenceNumber,omitempty"`
	TotalAmount       decimal.Decimal `json:"totalAmount"`
	AllocatedAmount   decimal.Decimal `json:"allocatedAmount"`
	UnallocatedAmount decimal.Decimal `json:"unallocatedAmount"`
	Status            DepositStatus   `json:"status"`
	DepositDate       time.Time       `json:"depositDate"`
	CreatedAt         time.Time       `json:"createdAt"`
}
