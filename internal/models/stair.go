package models

import "time"

// StairConfig captures the measurements for one staircase on a job.
// All dimensions are in inches.
type StairConfig struct {
	ID             int64     `json:"id" db:"id"`
	JobID          int64     `json:"jobId" db:"job_id"`
	Name           string    `json:"name" db:"name"`
	FloorToFloor   float64   `json:"floorToFloor" db:"floor_to_floor"`
	TreadCount     int       `json:"treadCount" db:"tread_count"`
	TreadRun       float64   `json:"treadRun" db:"tread_run"`
	TreadThickness float64   `json:"treadThickness" db:"tread_thickness"`
	NosingOverhang float64   `json:"nosingOverhang" db:"nosing_overhang"`
	StairWidth     float64   `json:"stairWidth" db:"stair_width"`
	StringerStyle  string    `json:"stringerStyle" db:"stringer_style"` // cut, closed, mono
	Material       string    `json:"material,omitempty" db:"material"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}

// CutSheet is the computed shop sheet for a stair configuration.
type CutSheet struct {
	StairConfigID  int64    `json:"stairConfigId"`
	Name           string   `json:"name"`
	RiserCount     int      `json:"riserCount"`
	RiserHeight    float64  `json:"riserHeight"`
	TreadCount     int      `json:"treadCount"`
	TreadRun       float64  `json:"treadRun"`
	TreadDepth     float64  `json:"treadDepth"` // run + nosing
	TotalRise      float64  `json:"totalRise"`
	TotalRun       float64  `json:"totalRun"`
	StringerLength float64  `json:"stringerLength"`
	StairAngle     float64  `json:"stairAngle"` // degrees from horizontal
	Warnings       []string `json:"warnings,omitempty"`
}
