package services

import (
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/summitstairs/backend/internal/models"
)

type CustomerService struct {
	db        *sql.DB
	validator *ValidationHelper
}

type CustomerRequest struct {
	Name    string `json:"name" validate:"required,min=2"`
	Company string `json:"company,omitempty"`
	Email   string `json:"email,omitempty" validate:"omitempty,email"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

func NewCustomerService(db *sql.DB) *CustomerService {
	return &CustomerService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

// CreateCustomer creates a new customer
// @Summary Create a customer
// @Tags customers
// @Accept json
// @Produce json
// @Param customer body CustomerRequest true "Customer data"
// @Success 201 {object} models.Customer
// @Failure 400 {object} ErrorResponse
// @Router /customers [post]
func (cs *CustomerService) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	req, ok := cs.decodeCustomer(w, r)
	if !ok {
		return
	}

	var customer models.Customer
	err := cs.db.QueryRow(`
		INSERT INTO customers (name, company, email, phone, address, city, state, zip, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		req.Name, req.Company, req.Email, req.Phone, req.Address,
		req.City, req.State, req.Zip, req.Notes,
	).Scan(&customer.ID, &customer.CreatedAt, &customer.UpdatedAt)
	if err != nil {
		log.Printf("[CUSTOMER] Failed to create customer: %v", err)
		SendErrorResponse(w, "Failed to create customer", http.StatusInternalServerError, nil)
		return
	}

	customer.Name = req.Name
	customer.Company = req.Company
	customer.Email = req.Email
	customer.Phone = req.Phone
	customer.Address = req.Address
	customer.City = req.City
	customer.State = req.State
	customer.Zip = req.Zip
	customer.Notes = req.Notes

	log.Printf("[CUSTOMER] Created customer %d: %s", customer.ID, customer.Name)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(customer)
}

// UpdateCustomer updates an existing customer
// @Summary Update a customer
// @Tags customers
// @Accept json
// @Produce json
// @Param customerId path int true "Customer ID"
// @Param customer body CustomerRequest true "Customer data"
// @Success 200 {object} models.Customer
// @Failure 404 {object} ErrorResponse
// @Router /customers/{customerId} [put]
func (cs *CustomerService) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	customerID, err := strconv.ParseInt(chi.URLParam(r, "customerId"), 10, 64)
	if err != nil || customerID <= 0 {
		SendErrorResponse(w, "Invalid customer ID", http.StatusBadRequest, nil)
		return
	}

	req, ok := cs.decodeCustomer(w, r)
	if !ok {
		return
	}

	result, err := cs.db.Exec(`
		UPDATE customers
		SET name = $1, company = $2, email = $3, phone = $4, address = $5,
		    city = $6, state = $7, zip = $8, notes = $9, updated_at = NOW()
		WHERE id = $10`,
		req.Name, req.Company, req.Email, req.Phone, req.Address,
		req.City, req.State, req.Zip, req.Notes, customerID)
	if err != nil {
		log.Printf("[CUSTOMER] Failed to update customer %d: %v", customerID, err)
		SendErrorResponse(w, "Failed to update customer", http.StatusInternalServerError, nil)
		return
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		SendErrorResponse(w, "Customer not found", http.StatusNotFound, nil)
		return
	}

	cs.fetchAndWrite(w, customerID)
}

// GetCustomer retrieves a customer by ID
// @Summary Get customer by ID
// @Tags customers
// @Produce json
// @Param customerId path int true "Customer ID"
// @Success 200 {object} models.Customer
// @Failure 404 {object} ErrorResponse
// @Router /customers/{customerId} [get]
func (cs *CustomerService) GetCustomer(w http.ResponseWriter, r *http.Request) {
	customerID, err := strconv.ParseInt(chi.URLParam(r, "customerId"), 10, 64)
	if err != nil || customerID <= 0 {
		SendErrorResponse(w, "Invalid customer ID", http.StatusBadRequest, nil)
		return
	}
	cs.fetchAndWrite(w, customerID)
}

// ListCustomers retrieves customers with an optional name search
// @Summary List customers
// @Tags customers
// @Produce json
// @Param q query string false "Name or company search"
// @Param limit query int false "Page size (default 50)"
// @Success 200 {object} object{customers=[]models.Customer,count=int}
// @Router /customers [get]
func (cs *CustomerService) ListCustomers(w http.ResponseWriter, r *http.Request) {
	search := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 && l <= 200 {
			limit = l
		}
	}

	query := `
		SELECT id, name, COALESCE(company, ''), COALESCE(email, ''), COALESCE(phone, ''),
		       COALESCE(address, ''), COALESCE(city, ''), COALESCE(state, ''), COALESCE(zip, ''),
		       COALESCE(notes, ''), created_at, updated_at
		FROM customers`
	args := []interface{}{}
	if search != "" {
		query += ` WHERE name ILIKE $1 OR company ILIKE $1`
		args = append(args, "%"+search+"%")
	}
	query += ` ORDER BY name LIMIT ` + strconv.Itoa(limit)

	rows, err := cs.db.Query(query, args...)
	if err != nil {
		log.Printf("[CUSTOMER] Failed to list customers: %v", err)
		SendErrorResponse(w, "Failed to fetch customers", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	customers := []models.Customer{}
	for rows.Next() {
		var c models.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Company, &c.Email, &c.Phone,
			&c.Address, &c.City, &c.State, &c.Zip, &c.Notes, &c.CreatedAt, &c.UpdatedAt); err != nil {
			log.Printf("[CUSTOMER] Failed to scan customer row: %v", err)
			SendErrorResponse(w, "Failed to fetch customers", http.StatusInternalServerError, nil)
			return
		}
		customers = append(customers, c)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"customers": customers,
		"count":     len(customers),
	})
}

// GetCustomerBalance summarizes a customer's position across all jobs
// @Summary Get customer balance
// @Description Job totals versus allocated deposits across all of the customer's jobs
// @Tags customers
// @Produce json
// @Param customerId path int true "Customer ID"
// @Success 200 {object} models.CustomerBalance
// @Failure 404 {object} ErrorResponse
// @Router /customers/{customerId}/balance [get]
func (cs *CustomerService) GetCustomerBalance(w http.ResponseWriter, r *http.Request) {
	customerID, err := strconv.ParseInt(chi.URLParam(r, "customerId"), 10, 64)
	if err != nil || customerID <= 0 {
		SendErrorResponse(w, "Invalid customer ID", http.StatusBadRequest, nil)
		return
	}

	var exists bool
	if err := cs.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM customers WHERE id = $1)`, customerID).Scan(&exists); err != nil || !exists {
		SendErrorResponse(w, "Customer not found", http.StatusNotFound, nil)
		return
	}

	var jobTotalStr, allocatedStr string
	err = cs.db.QueryRow(`
		SELECT COALESCE((
			SELECT SUM(ji.total_amount)
			FROM job_items ji
			JOIN jobs j ON j.id = ji.job_id
			WHERE j.customer_id = $1 AND j.status <> 'cancelled'
		), 0)::text,
		COALESCE((
			SELECT SUM(da.amount)
			FROM deposit_allocations da
			JOIN deposits d ON d.id = da.deposit_id
			WHERE d.customer_id = $1
		), 0)::text`, customerID).Scan(&jobTotalStr, &allocatedStr)
	if err != nil {
		log.Printf("[CUSTOMER] Failed to compute balance for customer %d: %v", customerID, err)
		SendErrorResponse(w, "Failed to compute balance", http.StatusInternalServerError, nil)
		return
	}

	jobTotal, err := decimal.NewFromString(jobTotalStr)
	if err != nil {
		SendErrorResponse(w, "Failed to compute balance", http.StatusInternalServerError, nil)
		return
	}
	allocated, err := decimal.NewFromString(allocatedStr)
	if err != nil {
		SendErrorResponse(w, "Failed to compute balance", http.StatusInternalServerError, nil)
		return
	}

	balance := models.CustomerBalance{
		CustomerID:     customerID,
		JobTotal:       jobTotal,
		AllocatedTotal: allocated,
		OpenBalance:    jobTotal.Sub(allocated),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(balance)
}

func (cs *CustomerService) decodeCustomer(w http.ResponseWriter, r *http.Request) (*CustomerRequest, bool) {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req CustomerRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return nil, false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return nil, false
	}
	if err := cs.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return nil, false
	}
	return &req, true
}

func (cs *CustomerService) fetchAndWrite(w http.ResponseWriter, customerID int64) {
	var c models.Customer
	err := cs.db.QueryRow(`
		SELECT id, name, COALESCE(company, ''), COALESCE(email, ''), COALESCE(phone, ''),
		       COALESCE(address, ''), COALESCE(city, ''), COALESCE(state, ''), COALESCE(zip, ''),
		       COALESCE(notes, ''), created_at, updated_at
		FROM customers WHERE id = $1`, customerID).Scan(
		&c.ID, &c.Name, &c.Company, &c.Email, &c.Phone,
		&c.Address, &c.City, &c.State, &c.Zip, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Customer not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[CUSTOMER] Failed to fetch customer %d: %v", customerID, err)
			SendErrorResponse(w, "Failed to fetch customer", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(c)
}
