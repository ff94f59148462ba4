package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/summitstairs/backend/internal/apperrors"
	"github.com/summitstairs/backend/internal/audit"
	"github.com/summitstairs/backend/internal/database"
	"github.com/summitstairs/backend/internal/middleware"
	"github.com/summitstairs/backend/internal/models"
)

// DepositService owns the transaction boundaries for deposit creation and
// allocation. All cap checks run inside the deposit's locked transaction.
type DepositService struct {
	db        *sql.DB
	caps      database.Capabilities
	validator *ValidationHelper
	audit     *audit.Logger
	details   *DepositDetailService
}

func NewDepositService(db *sql.DB, caps database.Capabilities) *DepositService {
	return &DepositService{
		db:        db,
		caps:      caps,
		validator: NewValidationHelper(),
		audit:     audit.NewLogger(),
		details:   NewDepositDetailService(db, caps),
	}
}

type CreateDepositRequest struct {
	CustomerID      int64            `json:"customerId" validate:"required,gt=0"`
	PaymentMethod   string           `json:"paymentMethod" validate:"required,oneof=check cash credit_card ach wire other"`
	ReferenceNumber string           `json:"referenceNumber,omitempty"`
	PaymentDate     string           `json:"paymentDate,omitempty"`
	TotalAmount     decimal.Decimal  `json:"totalAmount"`
	DepositDate     string           `json:"depositDate,omitempty"`
	Notes           string           `json:"notes,omitempty"`
	Allocations     []AllocationLine `json:"allocations,omitempty"`
}

type AllocateDepositRequest struct {
	Allocations []AllocationLine `json:"allocations" validate:"required,min=1"`
}

// CreateDeposit records a customer payment, optionally with initial allocations
// @Summary Create a deposit
// @Description Record a customer payment and optionally allocate it against job items
// @Tags deposits
// @Accept json
// @Produce json
// @Param deposit body CreateDepositRequest true "Deposit data"
// @Success 201 {object} models.DepositDetail
// @Failure 400 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /deposits [post]
func (ds *DepositService) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	var req CreateDepositRequest

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := ds.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	actor := middleware.UserIDFromContext(r.Context())

	depositID, err := ds.Create(r.Context(), &req, actor)
	if err != nil {
		ds.sendDepositError(w, 0, actor, err)
		return
	}

	detail, err := ds.details.Load(r.Context(), depositID)
	if err != nil {
		log.Printf("[DEPOSIT] Failed to reload deposit %d after create: %v", depositID, err)
		ds.sendDepositError(w, depositID, actor, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(detail)
}

// AllocateDeposit applies a batch of allocations to an existing deposit
// @Summary Allocate a deposit
// @Description Apply a batch of allocation lines against job items; all-or-nothing
// @Tags deposits
// @Accept json
// @Produce json
// @Param depositId path int true "Deposit ID"
// @Param allocations body AllocateDepositRequest true "Allocation lines"
// @Success 200 {object} models.DepositDetail
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /deposits/{depositId}/allocations [post]
func (ds *DepositService) AllocateDeposit(w http.ResponseWriter, r *http.Request) {
	depositID, err := strconv.ParseInt(chi.URLParam(r, "depositId"), 10, 64)
	if err != nil || depositID <= 0 {
		SendErrorResponse(w, "Invalid deposit ID", http.StatusBadRequest, nil)
		return
	}

	var req AllocateDepositRequest

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := ds.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	actor := middleware.UserIDFromContext(r.Context())

	if err := ds.Allocate(r.Context(), depositID, req.Allocations, actor); err != nil {
		ds.sendDepositError(w, depositID, actor, err)
		return
	}

	detail, err := ds.details.Load(r.Context(), depositID)
	if err != nil {
		log.Printf("[DEPOSIT] Failed to reload deposit %d after allocation: %v", depositID, err)
		ds.sendDepositError(w, depositID, actor, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(detail)
}

// Create inserts a deposit and any initial allocations in one transaction.
func (ds *DepositService) Create(ctx context.Context, req *CreateDepositRequest, actor string) (int64, error) {
	if !models.PaymentMethod(req.PaymentMethod).Valid() {
		return 0, apperrors.Newf(apperrors.KindValidation, "invalid payment method %q", req.PaymentMethod)
	}
	if !req.TotalAmount.IsPositive() {
		return 0, apperrors.New(apperrors.KindValidation, "deposit total must be positive")
	}

	paymentDate, err := parseOptionalDate(req.PaymentDate)
	if err != nil {
		return 0, apperrors.New(apperrors.KindValidation, "invalid paymentDate, expected YYYY-MM-DD")
	}
	depositDate := time.Now()
	if req.DepositDate != "" {
		d, err := parseOptionalDate(req.DepositDate)
		if err != nil {
			return 0, apperrors.New(apperrors.KindValidation, "invalid depositDate, expected YYYY-MM-DD")
		}
		depositDate = *d
	}

	tx, err := ds.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("[DEPOSIT] Failed to begin transaction: %v", err)
		return 0, apperrors.Wrap(apperrors.KindInfrastructure, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	var validated []AllocationLine
	if len(req.Allocations) > 0 {
		items, err := ds.fetchItemBalances(tx, itemIDs(req.Allocations))
		if err != nil {
			return 0, err
		}
		validated, err = ValidateAllocations(req.CustomerID, req.TotalAmount, items, req.Allocations)
		if err != nil {
			return 0, err
		}
	}

	var depositID int64
	err = tx.QueryRow(`
		INSERT INTO deposits
		(customer_id, payment_method, reference_number, payment_date, total_amount, deposit_date, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id`,
		req.CustomerID, req.PaymentMethod, nullString(req.ReferenceNumber), paymentDate,
		req.TotalAmount.StringFixed(2), depositDate, nullString(req.Notes), actor,
	).Scan(&depositID)
	if err != nil {
		return 0, apperrors.FromStore(err)
	}

	if err := ds.insertAllocations(tx, depositID, validated, actor); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[DEPOSIT] Failed to commit deposit create: %v", err)
		return 0, apperrors.Wrap(apperrors.KindInfrastructure, "failed to commit transaction", err)
	}

	ds.audit.LogDepositCreated(depositID, actor, req.TotalAmount.StringFixed(2))
	return depositID, nil
}

// Allocate applies a validated batch of lines to an existing deposit. The
// deposit row lock is the critical section: concurrent calls against the
// same deposit serialize here, and the aggregate re-read below observes
// whatever the previous holder committed.
func (ds *DepositService) Allocate(ctx context.Context, depositID int64, lines []AllocationLine, actor string) error {
	tx, err := ds.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("[ALLOCATION] Failed to begin transaction: %v", err)
		return apperrors.Wrap(apperrors.KindInfrastructure, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	var customerID int64
	var totalAmountStr string
	err = tx.QueryRow(`
		SELECT id, customer_id, total_amount::text
		FROM deposits
		WHERE id = $1
		FOR UPDATE`, depositID).Scan(&depositID, &customerID, &totalAmountStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return apperrors.Newf(apperrors.KindNotFound, "deposit %d not found", depositID)
		}
		return apperrors.FromStore(err)
	}

	totalAmount, err := decimal.NewFromString(totalAmountStr)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInfrastructure, "invalid deposit amount in store", err)
	}

	var allocatedStr string
	err = tx.QueryRow(`
		SELECT COALESCE(SUM(amount), 0)::text
		FROM deposit_allocations
		WHERE deposit_id = $1`, depositID).Scan(&allocatedStr)
	if err != nil {
		return apperrors.FromStore(err)
	}
	allocated, err := decimal.NewFromString(allocatedStr)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInfrastructure, "invalid allocation sum in store", err)
	}

	items, err := ds.fetchItemBalances(tx, itemIDs(lines))
	if err != nil {
		return err
	}

	validated, err := ValidateAllocations(customerID, totalAmount.Sub(allocated), items, lines)
	if err != nil {
		return err
	}

	if err := ds.insertAllocations(tx, depositID, validated, actor); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[ALLOCATION] Failed to commit allocation batch for deposit %d: %v", depositID, err)
		return apperrors.Wrap(apperrors.KindInfrastructure, "failed to commit transaction", err)
	}

	batchTotal := decimal.Zero
	for _, line := range validated {
		batchTotal = batchTotal.Add(line.Amount)
	}
	ds.audit.LogAllocation(depositID, actor, len(validated), batchTotal.StringFixed(2))
	return nil
}

// fetchItemBalances loads the balance snapshot for the referenced items in
// one batched query. allocated sums that item's allocations across every
// deposit, not just the one being worked on.
func (ds *DepositService) fetchItemBalances(tx *sql.Tx, ids []int64) (map[int64]models.JobItemBalance, error) {
	if len(ids) == 0 {
		return map[int64]models.JobItemBalance{}, nil
	}

	rows, err := tx.Query(`
		SELECT ji.id, ji.job_id, j.customer_id, ji.total_amount::text,
		       COALESCE(SUM(da.amount), 0)::text AS allocated
		FROM job_items ji
		JOIN jobs j ON j.id = ji.job_id
		LEFT JOIN deposit_allocations da ON da.job_item_id = ji.id
		WHERE ji.id = ANY($1)
		GROUP BY ji.id, ji.job_id, j.customer_id, ji.total_amount`,
		pq.Array(ids))
	if err != nil {
		return nil, apperrors.FromStore(err)
	}
	defer rows.Close()

	items := make(map[int64]models.JobItemBalance, len(ids))
	for rows.Next() {
		var b models.JobItemBalance
		var totalStr, allocatedStr string
		if err := rows.Scan(&b.ID, &b.JobID, &b.CustomerID, &totalStr, &allocatedStr); err != nil {
			return nil, apperrors.FromStore(err)
		}
		if b.TotalAmount, err = decimal.NewFromString(totalStr); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInfrastructure, "invalid item total in store", err)
		}
		if b.Allocated, err = decimal.NewFromString(allocatedStr); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInfrastructure, "invalid item allocation sum in store", err)
		}
		items[b.ID] = b
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.FromStore(err)
	}

	return items, nil
}

func (ds *DepositService) insertAllocations(tx *sql.Tx, depositID int64, lines []AllocationLine, actor string) error {
	for _, line := range lines {
		var err error
		if ds.caps.HasAllocationDate {
			allocationDate := time.Now()
			if line.AllocationDate != "" {
				d, perr := parseOptionalDate(line.AllocationDate)
				if perr != nil {
					return apperrors.New(apperrors.KindValidation, "invalid allocationDate, expected YYYY-MM-DD")
				}
				allocationDate = *d
			}
			_, err = tx.Exec(`
				INSERT INTO deposit_allocations
				(deposit_id, job_id, job_item_id, amount, allocation_date, notes, created_by, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
				depositID, line.JobID, line.JobItemID, line.Amount.StringFixed(2),
				allocationDate, nullString(line.Notes), actor)
		} else {
			_, err = tx.Exec(`
				INSERT INTO deposit_allocations
				(deposit_id, job_id, job_item_id, amount, notes, created_by, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
				depositID, line.JobID, line.JobItemID, line.Amount.StringFixed(2),
				nullString(line.Notes), actor)
		}
		if err != nil {
			return apperrors.FromStore(err)
		}
	}
	return nil
}

func (ds *DepositService) sendDepositError(w http.ResponseWriter, depositID int64, actor string, err error) {
	kind := apperrors.KindOf(err)
	if kind == apperrors.KindInfrastructure {
		log.Printf("[DEPOSIT] Infrastructure error for deposit %d: %v", depositID, err)
	}
	ds.audit.LogError(depositID, actor, err)

	message := err.Error()
	if kind == apperrors.KindInfrastructure {
		message = "Failed to process deposit"
	}
	SendErrorResponseCode(w, message, string(kind), apperrors.HTTPStatus(err), nil)
}

func itemIDs(lines []AllocationLine) []int64 {
	seen := make(map[int64]bool, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		if !seen[line.JobItemID] {
			seen[line.JobItemID] = true
			ids = append(ids, line.JobItemID)
		}
	}
	return ids
}

func parseOptionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
