package models

import "time"

// DirectoryEntry is one company in the cached customer directory.
// The resolver consults these synchronously for NIT lookups, no network call.
type DirectoryEntry struct {
	TaxID      string    `json:"tax_id" db:"tax_id"`
	Name       string    `json:"name" db:"name"`
	CheckDigit string    `json:"check_digit" db:"check_digit"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}
