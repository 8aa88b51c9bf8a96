package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"resto_pos_backend/internal/models"
)

// DirectoryRepository reads the customer directory used for company (NIT)
// identity resolution. The resolver fetches the whole directory once and
// consults its cache synchronously, so only bulk reads are needed here.
type DirectoryRepository interface {
	GetAll() ([]models.DirectoryEntry, error)
	GetByTaxID(taxID string) (*models.DirectoryEntry, error)
}

type directoryRepository struct {
	db *sql.DB
}

// NewDirectoryRepository creates a new instance of DirectoryRepository.
func NewDirectoryRepository(db *sql.DB) DirectoryRepository {
	return &directoryRepository{db: db}
}

func (r *directoryRepository) GetAll() ([]models.DirectoryEntry, error) {
	rows, err := r.db.Query(
		`SELECT tax_id, name, check_digit, created_at, updated_at
		 FROM customer_directory ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("%w: querying customer directory: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var entries []models.DirectoryEntry
	for rows.Next() {
		var e models.DirectoryEntry
		if err := rows.Scan(&e.TaxID, &e.Name, &e.CheckDigit, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning directory entry: %v", ErrDatabaseError, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating directory entries: %v", ErrDatabaseError, err)
	}
	return entries, nil
}

func (r *directoryRepository) GetByTaxID(taxID string) (*models.DirectoryEntry, error) {
	var e models.DirectoryEntry
	err := r.db.QueryRow(
		`SELECT tax_id, name, check_digit, created_at, updated_at
		 FROM customer_directory WHERE tax_id = $1`, taxID,
	).Scan(&e.TaxID, &e.Name, &e.CheckDigit, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: directory entry %s", ErrNotFound, taxID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading directory entry: %v", ErrDatabaseError, err)
	}
	return &e, nil
}
