package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/summitstairs/backend/internal/middleware"
	"github.com/summitstairs/backend/internal/models"
)

type JobService struct {
	db        *sql.DB
	validator *ValidationHelper
}

type JobItemRequest struct {
	Description string          `json:"description" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

type JobRequest struct {
	CustomerID  int64            `json:"customerId" validate:"required,gt=0"`
	JobNumber   string           `json:"jobNumber" validate:"required"`
	Description string           `json:"description,omitempty"`
	Status      string           `json:"status,omitempty"`
	SiteAddress string           `json:"siteAddress,omitempty"`
	QuoteDate   string           `json:"quoteDate,omitempty"`
	DueDate     string           `json:"dueDate,omitempty"`
	Items       []JobItemRequest `json:"items,omitempty"`
}

func NewJobService(db *sql.DB) *JobService {
	return &JobService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

// CreateJob creates a job with its line items in one transaction
// @Summary Create a job
// @Tags jobs
// @Accept json
// @Produce json
// @Param job body JobRequest true "Job data"
// @Success 201 {object} models.Job
// @Failure 400 {object} ErrorResponse
// @Router /jobs [post]
func (js *JobService) CreateJob(w http.ResponseWriter, r *http.Request) {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req JobRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}
	if err := js.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	status := models.JobStatus(req.Status)
	if req.Status == "" {
		status = models.JobStatusQuote
	}
	if !status.Valid() {
		SendErrorResponse(w, "Invalid job status", http.StatusBadRequest, nil)
		return
	}

	for _, item := range req.Items {
		if !item.Quantity.IsPositive() || item.UnitPrice.IsNegative() {
			SendErrorResponse(w, "Job item quantity must be positive and unit price non-negative", http.StatusBadRequest, nil)
			return
		}
	}

	quoteDate, err := parseOptionalDate(req.QuoteDate)
	if err != nil {
		SendErrorResponse(w, "Invalid quoteDate, expected YYYY-MM-DD", http.StatusBadRequest, nil)
		return
	}
	dueDate, err := parseOptionalDate(req.DueDate)
	if err != nil {
		SendErrorResponse(w, "Invalid dueDate, expected YYYY-MM-DD", http.StatusBadRequest, nil)
		return
	}

	actor := middleware.UserIDFromContext(r.Context())

	tx, err := js.db.Begin()
	if err != nil {
		log.Printf("[JOB] Failed to begin transaction: %v", err)
		SendErrorResponse(w, "Failed to create job", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	var jobID int64
	err = tx.QueryRow(`
		INSERT INTO jobs (customer_id, job_number, description, status, site_address, quote_date, due_date, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id`,
		req.CustomerID, req.JobNumber, nullString(req.Description), string(status),
		nullString(req.SiteAddress), quoteDate, dueDate, actor).Scan(&jobID)
	if err != nil {
		log.Printf("[JOB] Failed to create job %s: %v", req.JobNumber, err)
		SendErrorResponse(w, "Failed to create job", http.StatusInternalServerError, nil)
		return
	}

	for _, item := range req.Items {
		total := item.Quantity.Mul(item.UnitPrice).Round(2)
		_, err = tx.Exec(`
			INSERT INTO job_items (job_id, description, quantity, unit_price, total_amount, created_at)
			VALUES ($1, $2, $3, $4, $5, NOW())`,
			jobID, item.Description, item.Quantity.String(),
			item.UnitPrice.StringFixed(2), total.StringFixed(2))
		if err != nil {
			log.Printf("[JOB] Failed to create item on job %d: %v", jobID, err)
			SendErrorResponse(w, "Failed to create job items", http.StatusInternalServerError, nil)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[JOB] Failed to commit job create: %v", err)
		SendErrorResponse(w, "Failed to create job", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[JOB] Created job %d (%s) with %d items", jobID, req.JobNumber, len(req.Items))
	js.fetchAndWrite(w, jobID, http.StatusCreated)
}

// GetJob retrieves a job with its items
// @Summary Get job by ID
// @Tags jobs
// @Produce json
// @Param jobId path int true "Job ID"
// @Success 200 {object} models.Job
// @Failure 404 {object} ErrorResponse
// @Router /jobs/{jobId} [get]
func (js *JobService) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := strconv.ParseInt(chi.URLParam(r, "jobId"), 10, 64)
	if err != nil || jobID <= 0 {
		SendErrorResponse(w, "Invalid job ID", http.StatusBadRequest, nil)
		return
	}
	js.fetchAndWrite(w, jobID, http.StatusOK)
}

// ListJobs retrieves jobs with optional filters
// @Summary List jobs
// @Tags jobs
// @Produce json
// @Param customerId query int false "Filter by customer ID"
// @Param status query string false "Filter by status"
// @Success 200 {object} object{jobs=[]models.Job,count=int}
// @Router /jobs [get]
func (js *JobService) ListJobs(w http.ResponseWriter, r *http.Request) {
	var conditions []string
	var args []interface{}
	argIndex := 1

	if v := r.URL.Query().Get("customerId"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			conditions = append(conditions, fmt.Sprintf("customer_id = $%d", argIndex))
			args = append(args, id)
			argIndex++
		}
	}
	if status := r.URL.Query().Get("status"); status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, status)
		argIndex++
	}

	query := `
		SELECT id, customer_id, job_number, COALESCE(description, ''), status,
		       COALESCE(site_address, ''), quote_date, due_date, created_by, created_at, updated_at
		FROM jobs`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argIndex)
	args = append(args, 100)

	rows, err := js.db.Query(query, args...)
	if err != nil {
		log.Printf("[JOB] Failed to list jobs: %v", err)
		SendErrorResponse(w, "Failed to fetch jobs", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	jobs := []models.Job{}
	for rows.Next() {
		var j models.Job
		if err := rows.Scan(&j.ID, &j.CustomerID, &j.JobNumber, &j.Description, &j.Status,
			&j.SiteAddress, &j.QuoteDate, &j.DueDate, &j.CreatedBy, &j.CreatedAt, &j.UpdatedAt); err != nil {
			log.Printf("[JOB] Failed to scan job row: %v", err)
			SendErrorResponse(w, "Failed to fetch jobs", http.StatusInternalServerError, nil)
			return
		}
		jobs = append(jobs, j)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// UpdateJobStatus moves a job through the shop workflow
// @Summary Update job status
// @Tags jobs
// @Accept json
// @Produce json
// @Param jobId path int true "Job ID"
// @Param status body object{status=string} true "New status"
// @Success 200 {object} models.Job
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /jobs/{jobId}/status [put]
func (js *JobService) UpdateJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID, err := strconv.ParseInt(chi.URLParam(r, "jobId"), 10, 64)
	if err != nil || jobID <= 0 {
		SendErrorResponse(w, "Invalid job ID", http.StatusBadRequest, nil)
		return
	}

	var req struct {
		Status string `json:"status" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if !models.JobStatus(req.Status).Valid() {
		SendErrorResponse(w, "Invalid job status", http.StatusBadRequest, nil)
		return
	}

	result, err := js.db.Exec(`UPDATE jobs SET status = $1, updated_at = NOW() WHERE id = $2`, req.Status, jobID)
	if err != nil {
		log.Printf("[JOB] Failed to update status for job %d: %v", jobID, err)
		SendErrorResponse(w, "Failed to update job", http.StatusInternalServerError, nil)
		return
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		SendErrorResponse(w, "Job not found", http.StatusNotFound, nil)
		return
	}

	log.Printf("[JOB] Job %d moved to %s", jobID, req.Status)
	js.fetchAndWrite(w, jobID, http.StatusOK)
}

// GetJobItemBalances returns balance snapshots for the given job items
// @Summary Get job item balances
// @Description Per-item total versus amount allocated across all deposits
// @Tags jobs
// @Produce json
// @Param ids query string true "Comma-separated job item IDs"
// @Success 200 {object} object{items=[]models.JobItemBalance,count=int}
// @Failure 400 {object} ErrorResponse
// @Router /job-items/balances [get]
func (js *JobService) GetJobItemBalances(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("ids"))
	if raw == "" {
		SendErrorResponse(w, "ids query parameter is required", http.StatusBadRequest, nil)
		return
	}

	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			SendErrorResponse(w, "ids must be positive integers", http.StatusBadRequest, nil)
			return
		}
		ids = append(ids, id)
	}

	rows, err := js.db.Query(`
		SELECT ji.id, ji.job_id, j.customer_id, ji.total_amount::text,
		       COALESCE(SUM(da.amount), 0)::text AS allocated
		FROM job_items ji
		JOIN jobs j ON j.id = ji.job_id
		LEFT JOIN deposit_allocations da ON da.job_item_id = ji.id
		WHERE ji.id = ANY($1)
		GROUP BY ji.id, ji.job_id, j.customer_id, ji.total_amount`,
		pq.Array(ids))
	if err != nil {
		log.Printf("[JOB] Failed to fetch item balances: %v", err)
		SendErrorResponse(w, "Failed to fetch item balances", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	items := []models.JobItemBalance{}
	for rows.Next() {
		var b models.JobItemBalance
		var totalStr, allocatedStr string
		if err := rows.Scan(&b.ID, &b.JobID, &b.CustomerID, &totalStr, &allocatedStr); err != nil {
			log.Printf("[JOB] Failed to scan item balance row: %v", err)
			SendErrorResponse(w, "Failed to fetch item balances", http.StatusInternalServerError, nil)
			return
		}
		if b.TotalAmount, err = decimal.NewFromString(totalStr); err != nil {
			SendErrorResponse(w, "Failed to fetch item balances", http.StatusInternalServerError, nil)
			return
		}
		if b.Allocated, err = decimal.NewFromString(allocatedStr); err != nil {
			SendErrorResponse(w, "Failed to fetch item balances", http.StatusInternalServerError, nil)
			return
		}
		items = append(items, b)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"items": items,
		"count": len(items),
	})
}

func (js *JobService) fetchAndWrite(w http.ResponseWriter, jobID int64, statusCode int) {
	var j models.Job
	err := js.db.QueryRow(`
		SELECT id, customer_id, job_number, COALESCE(description, ''), status,
		       COALESCE(site_address, ''), quote_date, due_date, created_by, created_at, updated_at
		FROM jobs WHERE id = $1`, jobID).Scan(
		&j.ID, &j.CustomerID, &j.JobNumber, &j.Description, &j.Status,
		&j.SiteAddress, &j.QuoteDate, &j.DueDate, &j.CreatedBy, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Job not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[JOB] Failed to fetch job %d: %v", jobID, err)
			SendErrorResponse(w, "Failed to fetch job", http.StatusInternalServerError, nil)
		}
		return
	}

	rows, err := js.db.Query(`
		SELECT id, job_id, description, quantity::text, unit_price::text, total_amount::text, created_at
		FROM job_items WHERE job_id = $1 ORDER BY id`, jobID)
	if err != nil {
		log.Printf("[JOB] Failed to fetch items for job %d: %v", jobID, err)
		SendErrorResponse(w, "Failed to fetch job", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var item models.JobItem
		var qtyStr, priceStr, totalStr string
		if err := rows.Scan(&item.ID, &item.JobID, &item.Description, &qtyStr, &priceStr, &totalStr, &item.CreatedAt); err != nil {
			log.Printf("[JOB] Failed to scan item row for job %d: %v", jobID, err)
			SendErrorResponse(w, "Failed to fetch job", http.StatusInternalServerError, nil)
			return
		}
		item.Quantity, _ = decimal.NewFromString(qtyStr)
		item.UnitPrice, _ = decimal.NewFromString(priceStr)
		item.TotalAmount, _ = decimal.NewFromString(totalStr)
		j.Items = append(j.Items, item)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(j)
}
