package services

import (
	"context"
	"fmt"

	"resto_pos_backend/internal/clients"
	"resto_pos_backend/internal/models"
	"resto_pos_backend/internal/repositories"
	"resto_pos_backend/pkg/utils"
)

// IdentityResolver maps a (documentType, documentNumber) pair to a display
// name and, for company tax ids, a check digit.
//
// Company (NIT) lookups are served from a directory cached once at startup,
// no network round trip. Natural-person lookups go to the external identity
// service and are strictly best-effort: failures and empty results are
// swallowed and the caller keeps the prior name.
type IdentityResolver struct {
	client    clients.IdentityClient
	directory []models.DirectoryEntry
}

// NewIdentityResolver prefetches the customer directory and returns a
// resolver. The directory is immutable for the life of the process.
func NewIdentityResolver(client clients.IdentityClient, repo repositories.DirectoryRepository) (*IdentityResolver, error) {
	entries, err := repo.GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to prefetch customer directory: %w", err)
	}
	return &IdentityResolver{client: client, directory: entries}, nil
}

// Resolve performs the lookup appropriate for the document type. It never
// returns an error: a failed lookup is reported as not found.
func (r *IdentityResolver) Resolve(ctx context.Context, docType, docNumber string) clients.LookupResult {
	if docNumber == "" {
		return clients.LookupResult{Found: false}
	}

	if docType == models.DocTypeNIT {
		for _, entry := range r.directory {
			if entry.TaxID == docNumber {
				return clients.LookupResult{Found: true, Name: entry.Name, CheckDigit: entry.CheckDigit}
			}
		}
		return clients.LookupResult{Found: false}
	}

	result, err := r.client.Lookup(ctx, docType, docNumber)
	if err != nil {
		utils.LogDebug("IdentityResolver: lookup failed, keeping prior identity", map[string]interface{}{
			"document_type":   docType,
			"document_number": docNumber,
			"error":           err.Error(),
		})
		return clients.LookupResult{Found: false}
	}
	return result
}

// Directory exposes the cached company directory for the listing endpoint.
func (r *IdentityResolver) Directory() []models.DirectoryEntry {
	return r.directory
}
