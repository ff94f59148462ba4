package audit

import (
	"encoding/json"
	"log"
	"time"
)

type Event struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	DepositID int64     `json:"deposit_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Amount    string    `json:"amount,omitempty"`
	Status    string    `json:"status"`
	Details   any       `json:"details,omitempty"`
}

type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

func (a *Logger) LogDepositCreated(depositID int64, userID, amount string) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: "DEPOSIT_CREATED",
		DepositID: depositID,
		UserID:    userID,
		Amount:    amount,
		Status:    "SUCCESS",
	})
}

func (a *Logger) LogAllocation(depositID int64, userID string, count int, total string) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: "ALLOCATION",
		DepositID: depositID,
		UserID:    userID,
		Amount:    total,
		Status:    "SUCCESS",
		Details:   map[string]int{"line_count": count},
	})
}

func (a *Logger) LogError(depositID int64, userID string, err error) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: "ERROR",
		DepositID: depositID,
		UserID:    userID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
