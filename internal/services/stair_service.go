package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/summitstairs/backend/internal/models"
)

// IRC residential code limits, in inches.
const (
	maxRiserHeight = 7.75
	minTreadRun    = 10.0
)

type StairService struct {
	db        *sql.DB
	validator *ValidationHelper
}

type StairConfigRequest struct {
	JobID          int64   `json:"jobId" validate:"required,gt=0"`
	Name           string  `json:"name" validate:"required"`
	FloorToFloor   float64 `json:"floorToFloor" validate:"required,gt=0"`
	TreadCount     int     `json:"treadCount" validate:"required,gt=0"`
	TreadRun       float64 `json:"treadRun" validate:"required,gt=0"`
	TreadThickness float64 `json:"treadThickness" validate:"omitempty,gt=0"`
	NosingOverhang float64 `json:"nosingOverhang" validate:"omitempty,gte=0"`
	StairWidth     float64 `json:"stairWidth" validate:"required,gt=0"`
	StringerStyle  string  `json:"stringerStyle" validate:"required,oneof=cut closed mono"`
	Material       string  `json:"material,omitempty"`
}

func NewStairService(db *sql.DB) *StairService {
	return &StairService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

// CreateStairConfig records a stair configuration on a job
// @Summary Create stair configuration
// @Tags stairs
// @Accept json
// @Produce json
// @Param config body StairConfigRequest true "Stair configuration"
// @Success 201 {object} models.StairConfig
// @Failure 400 {object} ErrorResponse
// @Router /stair-configs [post]
func (ss *StairService) CreateStairConfig(w http.ResponseWriter, r *http.Request) {
	req, ok := ss.decodeConfig(w, r)
	if !ok {
		return
	}

	var config models.StairConfig
	err := ss.db.QueryRow(`
		INSERT INTO stair_configs
		(job_id, name, floor_to_floor, tread_count, tread_run, tread_thickness, nosing_overhang, stair_width, stringer_style, material, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		req.JobID, req.Name, req.FloorToFloor, req.TreadCount, req.TreadRun,
		req.TreadThickness, req.NosingOverhang, req.StairWidth, req.StringerStyle, req.Material,
	).Scan(&config.ID, &config.CreatedAt, &config.UpdatedAt)
	if err != nil {
		log.Printf("[STAIR] Failed to create config for job %d: %v", req.JobID, err)
		SendErrorResponse(w, "Failed to create stair configuration", http.StatusInternalServerError, nil)
		return
	}

	ss.applyRequest(&config, req)

	log.Printf("[STAIR] Created config %d (%s) on job %d", config.ID, config.Name, config.JobID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(config)
}

// UpdateStairConfig replaces a stair configuration
// @Summary Update stair configuration
// @Tags stairs
// @Accept json
// @Produce json
// @Param configId path int true "Stair config ID"
// @Param config body StairConfigRequest true "Stair configuration"
// @Success 200 {object} models.StairConfig
// @Failure 404 {object} ErrorResponse
// @Router /stair-configs/{configId} [put]
func (ss *StairService) UpdateStairConfig(w http.ResponseWriter, r *http.Request) {
	configID, err := strconv.ParseInt(chi.URLParam(r, "configId"), 10, 64)
	if err != nil || configID <= 0 {
		SendErrorResponse(w, "Invalid stair config ID", http.StatusBadRequest, nil)
		return
	}

	req, ok := ss.decodeConfig(w, r)
	if !ok {
		return
	}

	result, err := ss.db.Exec(`
		UPDATE stair_configs
		SET name = $1, floor_to_floor = $2, tread_count = $3, tread_run = $4,
		    tread_thickness = $5, nosing_overhang = $6, stair_width = $7,
		    stringer_style = $8, material = $9, updated_at = NOW()
		WHERE id = $10`,
		req.Name, req.FloorToFloor, req.TreadCount, req.TreadRun,
		req.TreadThickness, req.NosingOverhang, req.StairWidth,
		req.StringerStyle, req.Material, configID)
	if err != nil {
		log.Printf("[STAIR] Failed to update config %d: %v", configID, err)
		SendErrorResponse(w, "Failed to update stair configuration", http.StatusInternalServerError, nil)
		return
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		SendErrorResponse(w, "Stair configuration not found", http.StatusNotFound, nil)
		return
	}

	config, err := ss.fetchConfig(configID)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch stair configuration", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(config)
}

// ListStairConfigs lists all stair configurations on a job
// @Summary List stair configurations for a job
// @Tags stairs
// @Produce json
// @Param jobId path int true "Job ID"
// @Success 200 {object} object{configs=[]models.StairConfig,count=int}
// @Router /jobs/{jobId}/stair-configs [get]
func (ss *StairService) ListStairConfigs(w http.ResponseWriter, r *http.Request) {
	jobID, err := strconv.ParseInt(chi.URLParam(r, "jobId"), 10, 64)
	if err != nil || jobID <= 0 {
		SendErrorResponse(w, "Invalid job ID", http.StatusBadRequest, nil)
		return
	}

	rows, err := ss.db.Query(`
		SELECT id, job_id, name, floor_to_floor, tread_count, tread_run, tread_thickness,
		       nosing_overhang, stair_width, stringer_style, COALESCE(material, ''), created_at, updated_at
		FROM stair_configs WHERE job_id = $1 ORDER BY id`, jobID)
	if err != nil {
		log.Printf("[STAIR] Failed to list configs for job %d: %v", jobID, err)
		SendErrorResponse(w, "Failed to fetch stair configurations", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	configs := []models.StairConfig{}
	for rows.Next() {
		var c models.StairConfig
		if err := rows.Scan(&c.ID, &c.JobID, &c.Name, &c.FloorToFloor, &c.TreadCount, &c.TreadRun,
			&c.TreadThickness, &c.NosingOverhang, &c.StairWidth, &c.StringerStyle,
			&c.Material, &c.CreatedAt, &c.UpdatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch stair configurations", http.StatusInternalServerError, nil)
			return
		}
		configs = append(configs, c)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"configs": configs,
		"count":   len(configs),
	})
}

// GetCutSheet computes the shop cut sheet for a stair configuration
// @Summary Get cut sheet
// @Description Compute riser heights, stringer length and code warnings for a configuration
// @Tags stairs
// @Produce json
// @Param configId path int true "Stair config ID"
// @Success 200 {object} models.CutSheet
// @Failure 404 {object} ErrorResponse
// @Router /stair-configs/{configId}/cut-sheet [get]
func (ss *StairService) GetCutSheet(w http.ResponseWriter, r *http.Request) {
	configID, err := strconv.ParseInt(chi.URLParam(r, "configId"), 10, 64)
	if err != nil || configID <= 0 {
		SendErrorResponse(w, "Invalid stair config ID", http.StatusBadRequest, nil)
		return
	}

	config, err := ss.fetchConfig(configID)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Stair configuration not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[STAIR] Failed to fetch config %d: %v", configID, err)
			SendErrorResponse(w, "Failed to fetch stair configuration", http.StatusInternalServerError, nil)
		}
		return
	}

	sheet := ComputeCutSheet(config)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sheet)
}

// ComputeCutSheet derives the shop sheet from a configuration. Risers
// always outnumber treads by one; the top riser lands on the upper floor.
func ComputeCutSheet(config *models.StairConfig) *models.CutSheet {
	riserCount := config.TreadCount + 1
	riserHeight := config.FloorToFloor / float64(riserCount)
	totalRun := float64(config.TreadCount) * config.TreadRun
	stringerLength := math.Sqrt(config.FloorToFloor*config.FloorToFloor + totalRun*totalRun)
	angle := math.Atan2(config.FloorToFloor, totalRun) * 180 / math.Pi

	sheet := &models.CutSheet{
		StairConfigID:  config.ID,
		Name:           config.Name,
		RiserCount:     riserCount,
		RiserHeight:    round16th(riserHeight),
		TreadCount:     config.TreadCount,
		TreadRun:       config.TreadRun,
		TreadDepth:     roundTo(config.TreadRun+config.NosingOverhang, 4),
		TotalRise:      config.FloorToFloor,
		TotalRun:       totalRun,
		StringerLength: roundTo(stringerLength, 2),
		StairAngle:     roundTo(angle, 1),
	}

	if riserHeight > maxRiserHeight {
		sheet.Warnings = append(sheet.Warnings,
			fmt.Sprintf("riser height %.3f\" exceeds code maximum %.2f\"; add a tread", riserHeight, maxRiserHeight))
	}
	if config.TreadRun < minTreadRun {
		sheet.Warnings = append(sheet.Warnings,
			fmt.Sprintf("tread run %.2f\" is below code minimum %.1f\"", config.TreadRun, minTreadRun))
	}
	if sheet.StairAngle > 45 {
		sheet.Warnings = append(sheet.Warnings,
			fmt.Sprintf("stair angle %.1f degrees is steeper than 45, verify headroom and landing", sheet.StairAngle))
	}

	return sheet
}

// roundTo rounds to the given number of decimal places.
func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

// round16th rounds to the nearest 1/16 inch, the shop's saw resolution.
func round16th(v float64) float64 {
	return math.Round(v*16) / 16
}

func (ss *StairService) decodeConfig(w http.ResponseWriter, r *http.Request) (*StairConfigRequest, bool) {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req StairConfigRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return nil, false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return nil, false
	}
	if err := ss.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return nil, false
	}
	return &req, true
}

func (ss *StairService) applyRequest(config *models.StairConfig, req *StairConfigRequest) {
	config.JobID = req.JobID
	config.Name = req.Name
	config.FloorToFloor = req.FloorToFloor
	config.TreadCount = req.TreadCount
	config.TreadRun = req.TreadRun
	config.TreadThickness = req.TreadThickness
	config.NosingOverhang = req.NosingOverhang
	config.StairWidth = req.StairWidth
	config.StringerStyle = req.StringerStyle
	config.Material = req.Material
}

func (ss *StairService) fetchConfig(configID int64) (*models.StairConfig, error) {
	var c models.StairConfig
	err := ss.db.QueryRow(`
		SELECT id, job_id, name, floor_to_floor, tread_count, tread_run, tread_thickness,
		       nosing_overhang, stair_width, stringer_style, COALESCE(material, ''), created_at, updated_at
		FROM stair_configs WHERE id = $1`, configID).Scan(
		&c.ID, &c.JobID, &c.Name, &c.FloorToFloor, &c.TreadCount, &c.TreadRun,
		&c.TreadThickness, &c.NosingOverhang, &c.StairWidth, &c.StringerStyle,
		&c.Material, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
