package database

import (
	"database/sql"
	"log"
)

// Capabilities records which optional store objects exist. Probed once at
// startup; query shapes are chosen from this instead of per-request
// introspection.
type Capabilities struct {
	// HasBalanceView is true when the deposit_balances view exists.
	HasBalanceView bool
	// HasAllocationDate is true when deposit_allocations carries an
	// allocation_date column.
	HasAllocationDate bool
}

// ProbeCapabilities inspects information_schema for the optional view and
// column. Errors degrade to "not present" so an older store still serves.
func ProbeCapabilities(db *sql.DB) Capabilities {
	var caps Capabilities

	err := db.QueryRow(`
		SELECT EXISTS (
			SELECT 1 FROM information_schema.views
			WHERE table_schema = 'public' AND table_name = 'deposit_balances'
		)`).Scan(&caps.HasBalanceView)
	if err != nil {
		log.Printf("[CAPABILITIES] balance view probe failed: %v", err)
	}

	err = db.QueryRow(`
		SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_schema = 'public'
			  AND table_name = 'deposit_allocations'
			  AND column_name = 'allocation_date'
		)`).Scan(&caps.HasAllocationDate)
	if err != nil {
		log.Printf("[CAPABILITIES] allocation_date probe failed: %v", err)
	}

	log.Printf("[CAPABILITIES] balance_view=%t allocation_date=%t",
		caps.HasBalanceView, caps.HasAllocationDate)
	return caps
}
