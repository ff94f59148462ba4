package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/summitstairs/backend/internal/apperrors"
	"github.com/summitstairs/backend/internal/database"
	"github.com/summitstairs/backend/internal/models"
)

// DepositDetailService is the read path: it reloads deposits with their
// allocations and derived balances. Pure reads, no locking.
type DepositDetailService struct {
	db   *sql.DB
	caps database.Capabilities
}

func NewDepositDetailService(db *sql.DB, caps database.Capabilities) *DepositDetailService {
	return &DepositDetailService{db: db, caps: caps}
}

// DepositListFilters narrows listDeposits output. Status is computed
// per row from the derived balance, never read from the store.
type DepositListFilters struct {
	CustomerID    int64
	PaymentMethod string
	Status        string
	Limit         int
	Offset        int
}

// Load fetches one deposit with its allocations and derived balance.
func (s *DepositDetailService) Load(ctx context.Context, depositID int64) (*models.DepositDetail, error) {
	detail := &models.DepositDetail{}

	var refNumber, notes sql.NullString
	var totalStr, unallocatedStr string

	err := s.db.QueryRowContext(ctx, s.detailQuery(), depositID).Scan(
		&detail.ID, &detail.CustomerID, &detail.CustomerName, &detail.PaymentMethod,
		&refNumber, &detail.PaymentDate, &totalStr, &unallocatedStr,
		&detail.DepositDate, &notes, &detail.CreatedBy, &detail.CreatedAt, &detail.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.Newf(apperrors.KindNotFound, "deposit %d not found", depositID)
		}
		return nil, apperrors.FromStore(err)
	}

	detail.ReferenceNumber = refNumber.String
	detail.Notes = notes.String

	if detail.TotalAmount, err = decimal.NewFromString(totalStr); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInfrastructure, "invalid deposit amount in store", err)
	}
	if detail.UnallocatedAmount, err = decimal.NewFromString(unallocatedStr); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInfrastructure, "invalid unallocated amount in store", err)
	}
	detail.AllocatedAmount = detail.TotalAmount.Sub(detail.UnallocatedAmount)
	detail.Status = models.DeriveDepositStatus(detail.TotalAmount, detail.AllocatedAmount)

	if detail.Allocations, err = s.loadAllocations(ctx, depositID); err != nil {
		return nil, err
	}

	return detail, nil
}

func (s *DepositDetailService) detailQuery() string {
	unallocated := `d.total_amount - COALESCE((
			SELECT SUM(amount) FROM deposit_allocations WHERE deposit_id = d.id
		), 0)`
	join := ""
	if s.caps.HasBalanceView {
		unallocated = `COALESCE(b.unallocated_amount, d.total_amount)`
		join = "LEFT JOIN deposit_balances b ON b.deposit_id = d.id"
	}
	return fmt.Sprintf(`
		SELECT d.id, d.customer_id, c.name, d.payment_method, d.reference_number,
		       d.payment_date, d.total_amount::text, (%s)::text,
		       d.deposit_date, d.notes, d.created_by, d.created_at, d.updated_at
		FROM deposits d
		JOIN customers c ON c.id = d.customer_id
		%s
		WHERE d.id = $1`, unallocated, join)
}

func (s *DepositDetailService) loadAllocations(ctx context.Context, depositID int64) ([]models.DepositAllocation, error) {
	dateCol := "NULL"
	if s.caps.HasAllocationDate {
		dateCol = "a.allocation_date"
	}
	query := fmt.Sprintf(`
		SELECT a.id, a.deposit_id, a.job_id, a.job_item_id, ji.description,
		       a.amount::text, %s, a.notes, a.created_by, a.created_at
		FROM deposit_allocations a
		JOIN job_items ji ON ji.id = a.job_item_id
		WHERE a.deposit_id = $1
		ORDER BY a.created_at, a.id`, dateCol)

	rows, err := s.db.QueryContext(ctx, query, depositID)
	if err != nil {
		return nil, apperrors.FromStore(err)
	}
	defer rows.Close()

	allocations := []models.DepositAllocation{}
	for rows.Next() {
		var a models.DepositAllocation
		var amountStr string
		var notes sql.NullString
		if err := rows.Scan(&a.ID, &a.DepositID, &a.JobID, &a.JobItemID, &a.JobItemTitle,
			&amountStr, &a.AllocationDate, &notes, &a.CreatedBy, &a.CreatedAt); err != nil {
			return nil, apperrors.FromStore(err)
		}
		if a.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInfrastructure, "invalid allocation amount in store", err)
		}
		a.Notes = notes.String
		allocations = append(allocations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.FromStore(err)
	}

	return allocations, nil
}

// List returns deposits matching the filters, newest first.
func (s *DepositDetailService) List(ctx context.Context, filters DepositListFilters) ([]models.DepositListItem, error) {
	unallocated := `d.total_amount - COALESCE((
			SELECT SUM(amount) FROM deposit_allocations WHERE deposit_id = d.id
		), 0)`
	join := ""
	if s.caps.HasBalanceView {
		unallocated = `COALESCE(b.unallocated_amount, d.total_amount)`
		join = "LEFT JOIN deposit_balances b ON b.deposit_id = d.id"
	}

	var conditions []string
	var args []interface{}
	argIndex := 1

	if filters.CustomerID > 0 {
		conditions = append(conditions, fmt.Sprintf("d.customer_id = $%d", argIndex))
		args = append(args, filters.CustomerID)
		argIndex++
	}
	if filters.PaymentMethod != "" {
		conditions = append(conditions, fmt.Sprintf("d.payment_method = $%d", argIndex))
		args = append(args, filters.PaymentMethod)
		argIndex++
	}

	query := fmt.Sprintf(`
		SELECT d.id, d.customer_id, c.name, d.payment_method, d.reference_number,
		       d.total_amount::text, (%s)::text, d.deposit_date, d.created_at
		FROM deposits d
		JOIN customers c ON c.id = d.customer_id
		%s`, unallocated, join)

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY d.deposit_date DESC, d.id DESC"

	limit := filters.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT $%d", argIndex)
	args = append(args, limit)
	argIndex++
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, filters.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.FromStore(err)
	}
	defer rows.Close()

	deposits := []models.DepositListItem{}
	for rows.Next() {
		var item models.DepositListItem
		var refNumber sql.NullString
		var totalStr, unallocatedStr string
		if err := rows.Scan(&item.ID, &item.CustomerID, &item.CustomerName, &item.PaymentMethod,
			&refNumber, &totalStr, &unallocatedStr, &item.DepositDate, &item.CreatedAt); err != nil {
			return nil, apperrors.FromStore(err)
		}
		item.ReferenceNumber = refNumber.String
		if item.TotalAmount, err = decimal.NewFromString(totalStr); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInfrastructure, "invalid deposit amount in store", err)
		}
		if item.UnallocatedAmount, err = decimal.NewFromString(unallocatedStr); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInfrastructure, "invalid unallocated amount in store", err)
		}
		item.AllocatedAmount = item.TotalAmount.Sub(item.UnallocatedAmount)
		item.Status = models.DeriveDepositStatus(item.TotalAmount, item.AllocatedAmount)

		// Status filter is computed per row, never pushed into SQL
		if filters.Status != "" && string(item.Status) != filters.Status {
			continue
		}
		deposits = append(deposits, item)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.FromStore(err)
	}

	return deposits, nil
}

// GetDeposit retrieves a deposit with allocations and derived balance
// @Summary Get deposit by ID
// @Description Retrieve one deposit with its allocations and derived balance
// @Tags deposits
// @Produce json
// @Param depositId path int true "Deposit ID"
// @Success 200 {object} models.DepositDetail
// @Failure 404 {object} ErrorResponse
// @Router /deposits/{depositId} [get]
func (s *DepositDetailService) GetDeposit(w http.ResponseWriter, r *http.Request) {
	depositID, err := strconv.ParseInt(chi.URLParam(r, "depositId"), 10, 64)
	if err != nil || depositID <= 0 {
		SendErrorResponse(w, "Invalid deposit ID", http.StatusBadRequest, nil)
		return
	}

	detail, err := s.Load(r.Context(), depositID)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindInfrastructure {
			log.Printf("[DEPOSIT] Failed to fetch deposit %d: %v", depositID, err)
			SendErrorResponse(w, "Failed to fetch deposit", http.StatusInternalServerError, nil)
			return
		}
		SendErrorResponseCode(w, err.Error(), string(apperrors.KindOf(err)), apperrors.HTTPStatus(err), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(detail)
}

// ListDeposits retrieves deposits with optional filters
// @Summary List deposits
// @Description Get deposits with optional customer, payment method and status filters
// @Tags deposits
// @Produce json
// @Param customerId query int false "Filter by customer ID"
// @Param paymentMethod query string false "Filter by payment method"
// @Param status query string false "Filter by derived status (unallocated, partial, allocated)"
// @Param limit query int false "Page size (default 50, max 200)"
// @Param offset query int false "Page offset"
// @Success 200 {object} object{deposits=[]models.DepositListItem,count=int}
// @Failure 500 {object} ErrorResponse
// @Router /deposits [get]
func (s *DepositDetailService) ListDeposits(w http.ResponseWriter, r *http.Request) {
	filters := DepositListFilters{
		PaymentMethod: r.URL.Query().Get("paymentMethod"),
		Status:        r.URL.Query().Get("status"),
	}
	if v := r.URL.Query().Get("customerId"); v != "" {
		filters.CustomerID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		filters.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		filters.Offset, _ = strconv.Atoi(v)
	}

	deposits, err := s.List(r.Context(), filters)
	if err != nil {
		log.Printf("[DEPOSIT] Failed to list deposits: %v", err)
		SendErrorResponse(w, "Failed to fetch deposits", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"deposits": deposits,
		"count":    len(deposits),
	})
}
